package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutmint/nutmint/cashu"
)

// MAX_ORDER bounds the number of denominations (powers of two) a keyset
// derives keys for: amounts 2^0 .. 2^(MAX_ORDER-1).
const MAX_ORDER = 60

// legacyIdWidth is the number of base64 characters kept from the legacy
// keyset id hash. Older Cashu mints truncate shorter than the 14 hex chars
// of the current scheme; 12 matches the width observed across
// moksha-mint-compatible wallets for the pre-NUT-02 id format.
const legacyIdWidth = 12

type MintKeyset struct {
	Id                string
	LegacyId          string
	Unit              string
	Active            bool
	DerivationPathIdx uint32
	Keys              map[uint64]KeyPair
	InputFeePpk       uint
}

type KeyPair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// deriveAmountKey computes the private key for a single denomination as
// sk = SHA256(masterSecret || derivationPath || decimal(amount)) mod N.
// There is no hierarchical structure: every denomination's key is an
// independent hash of the master secret, so a keyset is fully determined
// by (masterSecret, derivationPath) and is reproducible on any machine
// without needing to persist anything beyond those two strings.
func deriveAmountKey(masterSecret, derivationPath string, amount uint64) *secp256k1.PrivateKey {
	h := sha256.New()
	h.Write([]byte(masterSecret))
	h.Write([]byte(derivationPath))
	h.Write([]byte(strconv.FormatUint(amount, 10)))
	digest := h.Sum(nil)

	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(digest) // reduces mod the group order automatically

	// a zero scalar has no valid key; fold the digest through SHA256 again
	// deterministically until a nonzero scalar is found. This never
	// happens in practice (probability ~2^-256) but keeps the function
	// total.
	for scalar.IsZero() {
		sum := sha256.Sum256(digest)
		digest = sum[:]
		scalar.SetByteSlice(digest)
	}

	return secp256k1.NewPrivateKey(&scalar)
}

// GenerateKeyset derives a full keyset (one keypair per denomination) from
// a master secret and a derivation path, e.g. "0/0/0" for the first
// keyset of the first unit. Both keyset id schemes are computed so the
// mint can advertise the current one while still recognizing proofs
// signed under the legacy id.
func GenerateKeyset(masterSecret, derivationPath string) *MintKeyset {
	return GenerateKeysetWithFee(masterSecret, derivationPath, 0)
}

func GenerateKeysetWithFee(masterSecret, derivationPath string, inputFeePpk uint) *MintKeyset {
	keys := make(map[uint64]KeyPair, MAX_ORDER)
	pks := make(PublicKeys, MAX_ORDER)

	for i := 0; i < MAX_ORDER; i++ {
		amount := uint64(math.Pow(2, float64(i)))
		priv := deriveAmountKey(masterSecret, derivationPath, amount)
		pub := priv.PubKey()

		keys[amount] = KeyPair{PrivateKey: priv, PublicKey: pub}
		pks[amount] = pub
	}

	return &MintKeyset{
		Id:          DeriveKeysetId(pks),
		LegacyId:    DeriveLegacyKeysetId(pks),
		Unit:        cashu.Sat.String(),
		Active:      true,
		Keys:        keys,
		InputFeePpk: inputFeePpk,
	}
}

type PublicKeys map[uint64]*secp256k1.PublicKey

// Custom marshaller to display sorted keys
func (pks PublicKeys) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	amounts := make([]uint64, len(pks))
	i := 0
	for k := range pks {
		amounts[i] = k
		i++
	}
	slices.Sort(amounts)

	for j, amount := range amounts {
		if j != 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(amount)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('"')
		buf.Write(key)
		buf.WriteByte('"')
		buf.WriteByte(':')
		pubkey := hex.EncodeToString(pks[amount].SerializeCompressed())
		val, err := json.Marshal(pubkey)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (pks PublicKeys) UnmarshalJSON(data []byte) error {
	var tempKeys map[uint64]string
	if err := json.Unmarshal(data, &tempKeys); err != nil {
		return err
	}

	for amount, key := range tempKeys {
		keyBytes, err := hex.DecodeString(key)
		if err != nil {
			return err
		}
		publicKey, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return fmt.Errorf("invalid public key: %v", err)
		}
		pks[amount] = publicKey
	}
	return nil
}

func sortedPubkeys(keyset PublicKeys) [][]byte {
	type pubkey struct {
		amount uint64
		pk     *secp256k1.PublicKey
	}
	pubkeys := make([]pubkey, len(keyset))
	i := 0
	for amount, key := range keyset {
		pubkeys[i] = pubkey{amount, key}
		i++
	}
	sort.Slice(pubkeys, func(i, j int) bool {
		return pubkeys[i].amount < pubkeys[j].amount
	})

	out := make([][]byte, len(pubkeys))
	for i, key := range pubkeys {
		out[i] = key.pk.SerializeCompressed()
	}
	return out
}

// DeriveKeysetId returns the current (NUT-02) keyset id:
// - sort public keys by their amount in ascending order
// - concatenate all compressed public keys to one byte array
// - SHA256 the concatenation
// - take the first 14 hex characters of the digest
// - prefix with the "00" version byte
func DeriveKeysetId(keyset PublicKeys) string {
	keys := bytes.Join(sortedPubkeys(keyset), nil)
	hash := sha256.Sum256(keys)
	return "00" + hex.EncodeToString(hash[:])[:14]
}

// DeriveLegacyKeysetId returns the pre-NUT-02 keyset id: base64 of the
// SHA256 of the concatenated *hex-encoded* compressed public keys (rather
// than the raw bytes), truncated to legacyIdWidth characters. Mints that
// predate NUT-02 compute ids this way; a mint that wants to accept proofs
// minted under the old scheme needs to recognize both.
func DeriveLegacyKeysetId(keyset PublicKeys) string {
	var buf bytes.Buffer
	for _, key := range sortedPubkeys(keyset) {
		buf.WriteString(hex.EncodeToString(key))
	}
	hash := sha256.Sum256(buf.Bytes())
	encoded := base64.StdEncoding.EncodeToString(hash[:])
	if len(encoded) > legacyIdWidth {
		encoded = encoded[:legacyIdWidth]
	}
	return encoded
}

// PublicKeys returns the keyset's public keys as a map of amount to key.
func (ks *MintKeyset) PublicKeys() PublicKeys {
	pubkeys := make(PublicKeys, len(ks.Keys))
	for amount, key := range ks.Keys {
		pubkeys[amount] = key.PublicKey
	}
	return pubkeys
}

type keysetTemp struct {
	Id          string
	LegacyId    string
	Unit        string
	Active      bool
	Keys        map[uint64]json.RawMessage
	InputFeePpk uint
}

func (ks *MintKeyset) MarshalJSON() ([]byte, error) {
	temp := &keysetTemp{
		Id:       ks.Id,
		LegacyId: ks.LegacyId,
		Unit:     ks.Unit,
		Active:   ks.Active,
		Keys: func() map[uint64]json.RawMessage {
			m := make(map[uint64]json.RawMessage)
			for k, v := range ks.Keys {
				b, _ := json.Marshal(&v)
				m[k] = b
			}
			return m
		}(),
		InputFeePpk: ks.InputFeePpk,
	}

	return json.Marshal(temp)
}

func (ks *MintKeyset) UnmarshalJSON(data []byte) error {
	temp := &keysetTemp{}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	ks.Id = temp.Id
	ks.LegacyId = temp.LegacyId
	ks.Unit = temp.Unit
	ks.Active = temp.Active
	ks.InputFeePpk = temp.InputFeePpk

	ks.Keys = make(map[uint64]KeyPair)
	for k, v := range temp.Keys {
		var kp KeyPair
		if err := json.Unmarshal(v, &kp); err != nil {
			return err
		}
		ks.Keys[k] = kp
	}

	return nil
}

type keyPairTemp struct {
	PrivateKey []byte `json:"private_key"`
	PublicKey  []byte `json:"public_key"`
}

func (kp *KeyPair) MarshalJSON() ([]byte, error) {
	var privKey []byte

	if kp.PrivateKey != nil {
		privKey = append(privKey, kp.PrivateKey.Serialize()...)
	}
	res := keyPairTemp{
		PrivateKey: privKey,
		PublicKey:  kp.PublicKey.SerializeCompressed(),
	}
	return json.Marshal(res)
}

func (kp *KeyPair) UnmarshalJSON(data []byte) error {
	aux := &keyPairTemp{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	kp.PrivateKey = secp256k1.PrivKeyFromBytes(aux.PrivateKey)

	var err error
	kp.PublicKey, err = secp256k1.ParsePubKey(aux.PublicKey)
	if err != nil {
		return err
	}

	return nil
}
