package doctype

import (
	"testing"
	"time"

	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_Defaults(t *testing.T) {
	reg, err := NewRegistry(config.DefaultDocumentsConfig())
	require.NoError(t, err)

	assert.Len(t, reg.Types(), 9)

	po, err := reg.Get(PurchaseOrder)
	require.NoError(t, err)
	assert.Equal(t, "PO", po.Prefix)
	assert.Equal(t, 4, po.ResetMonth)
	assert.Equal(t, NumberFollowsChain, po.Policy)
	assert.Equal(t, string(PurchaseOrder), po.Lifecycle.Name)

	inv, err := reg.Get(Invoice)
	require.NoError(t, err)
	assert.Equal(t, NumberPerRevision, inv.Policy)

	_, err = reg.Get("PACKING_LIST")
	assert.ErrorIs(t, err, ErrUnknownDocumentType)
}

func TestNewRegistry_InvalidConfiguration(t *testing.T) {
	valid := config.DocumentTypeSettings{
		Type:            "PURCHASE_ORDER",
		Prefix:          "PO",
		ResetMonth:      4,
		NumberingPolicy: config.PolicyNumberFollowsChain,
		NumberTemplate:  "{PREFIX}/{FY}/{SEQ4}",
		Lifecycle:       "PURCHASE_ORDER",
	}

	cases := map[string]func(s *config.DocumentTypeSettings){
		"reset month zero":   func(s *config.DocumentTypeSettings) { s.ResetMonth = 0 },
		"reset month 13":     func(s *config.DocumentTypeSettings) { s.ResetMonth = 13 },
		"empty prefix":       func(s *config.DocumentTypeSettings) { s.Prefix = "" },
		"prefix with slash":  func(s *config.DocumentTypeSettings) { s.Prefix = "P/O" },
		"unknown policy":     func(s *config.DocumentTypeSettings) { s.NumberingPolicy = "whatever" },
		"template no seq":    func(s *config.DocumentTypeSettings) { s.NumberTemplate = "{PREFIX}/{FY}" },
		"unknown lifecycle":  func(s *config.DocumentTypeSettings) { s.Lifecycle = "PACKING_LIST" },
		"missing type":       func(s *config.DocumentTypeSettings) { s.Type = "" },
		"unresolved token":   func(s *config.DocumentTypeSettings) { s.NumberTemplate = "{PREFIX}/{FY}/{SEQ4}/{X}" },
		"template no prefix": func(s *config.DocumentTypeSettings) { s.NumberTemplate = "{FY}/{SEQ4}" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			entry := valid
			mutate(&entry)
			_, err := NewRegistry(config.DocumentsConfig{Types: []config.DocumentTypeSettings{entry}})
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	_, err := NewRegistry(config.DocumentsConfig{Types: []config.DocumentTypeSettings{valid, valid}})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewRegistry(config.DocumentsConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewRegistry_RejectsSharedPrefix(t *testing.T) {
	cfg := config.DefaultDocumentsConfig()
	for i := range cfg.Types {
		if cfg.Types[i].Type == string(DebitNote) {
			cfg.Types[i].Prefix = "CN"
		}
	}

	_, err := NewRegistry(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewRegistry_Timezone(t *testing.T) {
	reg, err := NewRegistry(config.DefaultDocumentsConfig())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, reg.Location())

	cfg := config.DefaultDocumentsConfig()
	cfg.Timezone = "Asia/Kolkata"
	reg, err = NewRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", reg.Location().String())

	at := time.Date(2026, 3, 31, 19, 0, 0, 0, time.UTC)
	local := reg.InCalendar(at)
	assert.True(t, local.Equal(at))
	assert.Equal(t, time.April, local.Month())
	assert.Equal(t, 1, local.Day())

	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = NewRegistry(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
