package mint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/nutmint/nutmint/mint/lightning"
	"github.com/joho/godotenv"
)

// MintMethodSettings and MeltMethodSettings mirror NUT-06's per-method
// limits; a MaxAmount of 0 means unbounded.
type MintMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MeltMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MintLimits struct {
	MaxBalance      uint64
	MintingSettings MintMethodSettings
	MeltingSettings MeltMethodSettings
}

type ContactInfo struct {
	Method string
	Info   string
}

// MintInfo is the read-only metadata a mint advertises about itself.
// Transport-level serving of it is out of scope; Mint.Info returns it
// with Pubkey filled in from the active keyset.
type MintInfo struct {
	Name            string
	Description     string
	LongDescription string
	Contact         []ContactInfo
	Motd            string
	Pubkey          string
}

// LightningFeeConfig mirrors moksha-mint's LightningFeeConfig: the fee
// reserve a mint demands before attempting an outgoing payment.
type LightningFeeConfig struct {
	FeePercent    float64
	FeeReserveMin uint64
}

// DefaultLightningFeeConfig matches LightningFeeConfig::default() in
// original_source/moksha-mint/src/mint.rs.
func DefaultLightningFeeConfig() LightningFeeConfig {
	return LightningFeeConfig{FeePercent: 1.0, FeeReserveMin: 4000}
}

type Config struct {
	PrivateKey      string
	DerivationPath  string
	DBPath          string
	DBDriver        string // "bolt" | "sqlite"
	InputFeePpk     uint
	LightningClient lightning.Backend
	FeeConfig       LightningFeeConfig
	MintInfo        MintInfo
	Limits          MintLimits
	HostPort        string
}

// GetConfig reads a Config from the process environment, loading a
// .env file first if one is present. It does not select a Lightning
// backend itself — callers (the cmd/mint launcher, or tests) build a
// lightning.Backend and set it on the returned Config before calling
// NewFromConfig.
func GetConfig() Config {
	_ = godotenv.Load()

	var inputFeePpk uint
	if v, ok := os.LookupEnv("MINT_INPUT_FEE_PPK"); ok {
		fee, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			log.Fatalf("invalid MINT_INPUT_FEE_PPK: %v", err)
		}
		inputFeePpk = uint(fee)
	}

	feeConfig := DefaultLightningFeeConfig()
	if v, ok := os.LookupEnv("LIGHTNING_FEE_PERCENT"); ok {
		percent, err := strconv.ParseFloat(v, 64)
		if err != nil || percent < 0 || percent > 100 {
			log.Fatalf("invalid LIGHTNING_FEE_PERCENT: %v", v)
		}
		feeConfig.FeePercent = percent
	}
	if v, ok := os.LookupEnv("LIGHTNING_RESERVE_FEE_MIN"); ok {
		min, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid LIGHTNING_RESERVE_FEE_MIN: %v", err)
		}
		feeConfig.FeeReserveMin = min
	}

	limits := MintLimits{}
	if v, ok := os.LookupEnv("MINT_MAX_BALANCE"); ok {
		max, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MINT_MAX_BALANCE: %v", err)
		}
		limits.MaxBalance = max
	}
	if v, ok := os.LookupEnv("MINT_MAX_MINT_AMOUNT"); ok {
		max, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MINT_MAX_MINT_AMOUNT: %v", err)
		}
		limits.MintingSettings.MaxAmount = max
	}
	if v, ok := os.LookupEnv("MINT_MAX_MELT_AMOUNT"); ok {
		max, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MINT_MAX_MELT_AMOUNT: %v", err)
		}
		limits.MeltingSettings.MaxAmount = max
	}

	mintInfo := MintInfo{
		Name:            os.Getenv("MINT_NAME"),
		Description:     os.Getenv("MINT_DESCRIPTION"),
		LongDescription: os.Getenv("MINT_DESCRIPTION_LONG"),
		Motd:            os.Getenv("MINT_MOTD"),
	}
	if contact := os.Getenv("MINT_CONTACT_INFO"); contact != "" {
		var infoArr [][]string
		if err := json.Unmarshal([]byte(contact), &infoArr); err != nil {
			log.Fatalf("error parsing MINT_CONTACT_INFO: %v", err)
		}
		for _, info := range infoArr {
			mintInfo.Contact = append(mintInfo.Contact, ContactInfo{Method: info[0], Info: info[1]})
		}
	}

	dbDriver := os.Getenv("MINT_DB_DRIVER")
	if dbDriver == "" {
		dbDriver = "bolt"
	}

	return Config{
		PrivateKey:     os.Getenv("MINT_PRIVATE_KEY"),
		DerivationPath: os.Getenv("MINT_DERIVATION_PATH"),
		DBPath:         os.Getenv("MINT_DB_PATH"),
		DBDriver:       dbDriver,
		InputFeePpk:    inputFeePpk,
		FeeConfig:      feeConfig,
		MintInfo:       mintInfo,
		Limits:         limits,
		HostPort:       os.Getenv("MINT_HOST_PORT"),
	}
}

// NewLightningBackend builds the lightning.Backend named by
// MINT_LIGHTNING_BACKEND, reading that backend's own env vars.
func NewLightningBackend() (lightning.Backend, error) {
	switch os.Getenv("MINT_LIGHTNING_BACKEND") {
	case "Lnd":
		return lightning.NewLndBackend()
	case "Lnbits":
		return lightning.NewLnbitsBackend()
	case "Alby":
		return lightning.NewAlbyBackend()
	case "Strike":
		return lightning.NewStrikeBackend()
	case "Fake", "":
		return lightning.NewFakeBackend(), nil
	default:
		return nil, fmt.Errorf("unknown MINT_LIGHTNING_BACKEND: %v", os.Getenv("MINT_LIGHTNING_BACKEND"))
	}
}
