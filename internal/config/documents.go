package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// DocumentTypeSettings is the per-document-type numbering and lifecycle
// configuration read at startup.
type DocumentTypeSettings struct {
	Type            string `mapstructure:"type"`
	Prefix          string `mapstructure:"prefix"`
	ResetMonth      int    `mapstructure:"reset_month"`
	NumberingPolicy string `mapstructure:"numbering_policy"`
	NumberTemplate  string `mapstructure:"number_template"`
	Lifecycle       string `mapstructure:"lifecycle"`
}

// DocumentsConfig carries the business calendar every document date and
// financial year is read in, plus the per-type settings.
type DocumentsConfig struct {
	Timezone          string                 `mapstructure:"timezone"`
	DefaultResetMonth int                    `mapstructure:"default_reset_month"`
	Types             []DocumentTypeSettings `mapstructure:"types"`
}

const (
	PolicyNumberFollowsChain = "number_follows_chain"
	PolicyNumberPerRevision  = "number_per_revision"

	DefaultNumberTemplate = "{PREFIX}/{FY}/{SEQ4}"
	DefaultResetMonth     = 4
	DefaultTimezone       = "UTC"
)

func DefaultDocumentsConfig() DocumentsConfig {
	entry := func(docType, prefix, policy string) DocumentTypeSettings {
		return DocumentTypeSettings{
			Type:            docType,
			Prefix:          prefix,
			ResetMonth:      DefaultResetMonth,
			NumberingPolicy: policy,
			NumberTemplate:  DefaultNumberTemplate,
			Lifecycle:       docType,
		}
	}

	return DocumentsConfig{
		Timezone:          DefaultTimezone,
		DefaultResetMonth: DefaultResetMonth,
		Types: []DocumentTypeSettings{
			entry("QUOTATION", "QT", PolicyNumberFollowsChain),
			entry("SALES_ORDER", "SO", PolicyNumberFollowsChain),
			entry("PURCHASE_ORDER", "PO", PolicyNumberFollowsChain),
			entry("INVOICE", "INV", PolicyNumberPerRevision),
			entry("GRN", "GRN", PolicyNumberFollowsChain),
			entry("DISPATCH_NOTE", "DN", PolicyNumberFollowsChain),
			entry("CREDIT_NOTE", "CN", PolicyNumberFollowsChain),
			entry("DEBIT_NOTE", "DBN", PolicyNumberFollowsChain),
			entry("RECEIPT", "RCT", PolicyNumberFollowsChain),
		},
	}
}

// LoadDocuments reads document_types.yml. Entries in the file override the
// compiled-in defaults by type; types missing from the file keep their defaults.
// DOCUMENT_TIMEZONE, when set, wins over the file's timezone.
// The result is read once; the engine never mutates it at runtime.
func LoadDocuments(cfg Config) (DocumentsConfig, error) {
	v := viper.New()

	if cfg.DocumentTypesFile != "" {
		v.SetConfigFile(cfg.DocumentTypesFile)
	} else {
		v.SetConfigName("document_types")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/pipetrade")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PIPETRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDocumentsConfig()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return DocumentsConfig{}, err
		}
		return withTimezone(defaults, cfg.DocumentTimezone), nil
	}

	out, err := decodeDocuments(v, defaults)
	if err != nil {
		return DocumentsConfig{}, err
	}
	return withTimezone(out, cfg.DocumentTimezone), nil
}

func withTimezone(cfg DocumentsConfig, timezone string) DocumentsConfig {
	if tz := strings.TrimSpace(timezone); tz != "" {
		cfg.Timezone = tz
	}
	return cfg
}

func decodeDocuments(v *viper.Viper, defaults DocumentsConfig) (DocumentsConfig, error) {
	var file DocumentsConfig
	if err := v.UnmarshalKey("documents", &file); err != nil {
		return DocumentsConfig{}, err
	}

	return MergeDocuments(defaults, file), nil
}

// MergeDocuments overlays override on base. Zero-valued fields in an override
// entry inherit the base entry (or the default reset month for new types).
func MergeDocuments(base, override DocumentsConfig) DocumentsConfig {
	out := DocumentsConfig{Timezone: base.Timezone, DefaultResetMonth: base.DefaultResetMonth}
	if tz := strings.TrimSpace(override.Timezone); tz != "" {
		out.Timezone = tz
	}
	if override.DefaultResetMonth != 0 {
		out.DefaultResetMonth = override.DefaultResetMonth
	}

	index := make(map[string]int, len(base.Types))
	for _, t := range base.Types {
		key := normalizeType(t.Type)
		index[key] = len(out.Types)
		if override.DefaultResetMonth != 0 {
			t.ResetMonth = override.DefaultResetMonth
		}
		out.Types = append(out.Types, t)
	}

	for _, t := range override.Types {
		key := normalizeType(t.Type)
		if key == "" {
			out.Types = append(out.Types, t)
			continue
		}
		t.Type = key
		pos, ok := index[key]
		if !ok {
			if t.ResetMonth == 0 {
				t.ResetMonth = out.DefaultResetMonth
			}
			if t.NumberTemplate == "" {
				t.NumberTemplate = DefaultNumberTemplate
			}
			if t.NumberingPolicy == "" {
				t.NumberingPolicy = PolicyNumberFollowsChain
			}
			index[key] = len(out.Types)
			out.Types = append(out.Types, t)
			continue
		}

		current := out.Types[pos]
		if t.Prefix != "" {
			current.Prefix = t.Prefix
		}
		if t.ResetMonth != 0 {
			current.ResetMonth = t.ResetMonth
		}
		if t.NumberingPolicy != "" {
			current.NumberingPolicy = t.NumberingPolicy
		}
		if t.NumberTemplate != "" {
			current.NumberTemplate = t.NumberTemplate
		}
		if t.Lifecycle != "" {
			current.Lifecycle = t.Lifecycle
		}
		out.Types[pos] = current
	}

	return out
}

func normalizeType(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
