package doctype

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/smallbiznis/pipetrade/internal/config"
	"github.com/smallbiznis/pipetrade/internal/fiscalyear"
	"github.com/smallbiznis/pipetrade/internal/sequence/format"
	"go.uber.org/fx"
)

var Module = fx.Module("doctype",
	fx.Provide(NewRegistry),
)

var prefixRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,11}$`)

// Definition is everything the engine knows about one document type.
type Definition struct {
	Type           DocumentType
	Prefix         string
	ResetMonth     int
	Policy         NumberingPolicy
	NumberTemplate string
	Lifecycle      Lifecycle
}

// Registry is immutable after construction.
type Registry struct {
	defs     map[DocumentType]Definition
	location *time.Location
}

// NewRegistry validates the configured document types against the built-in
// lifecycles. Any problem is reported as ErrInvalidConfiguration so the
// process refuses to start.
func NewRegistry(cfg config.DocumentsConfig) (*Registry, error) {
	lifecycles := BuiltinLifecycles()
	for name, l := range lifecycles {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("lifecycle %s: %w", name, err)
		}
	}

	location, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	defs := make(map[DocumentType]Definition, len(cfg.Types))
	prefixes := make(map[string]DocumentType, len(cfg.Types))
	for _, entry := range cfg.Types {
		def, err := buildDefinition(entry, lifecycles)
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.Type]; dup {
			return nil, fmt.Errorf("%w: document type %s configured twice", ErrInvalidConfiguration, def.Type)
		}
		if owner, taken := prefixes[def.Prefix]; taken {
			return nil, fmt.Errorf("%w: document types %s and %s share prefix %q", ErrInvalidConfiguration, owner, def.Type, def.Prefix)
		}
		defs[def.Type] = def
		prefixes[def.Prefix] = def.Type
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no document types configured", ErrInvalidConfiguration)
	}

	return &Registry{defs: defs, location: location}, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfiguration, name, err)
	}
	return location, nil
}

func buildDefinition(entry config.DocumentTypeSettings, lifecycles map[string]Lifecycle) (Definition, error) {
	docType := ParseDocumentType(entry.Type)
	if docType == "" {
		return Definition{}, fmt.Errorf("%w: document type without a name", ErrInvalidConfiguration)
	}
	if !prefixRe.MatchString(entry.Prefix) {
		return Definition{}, fmt.Errorf("%w: document type %s has invalid prefix %q", ErrInvalidConfiguration, docType, entry.Prefix)
	}
	if err := fiscalyear.ValidateResetMonth(entry.ResetMonth); err != nil {
		return Definition{}, fmt.Errorf("document type %s: %w", docType, err)
	}

	policy := NumberingPolicy(entry.NumberingPolicy)
	switch policy {
	case NumberFollowsChain, NumberPerRevision:
	case "":
		policy = NumberFollowsChain
	default:
		return Definition{}, fmt.Errorf("%w: document type %s has numbering policy %q", ErrInvalidConfiguration, docType, entry.NumberingPolicy)
	}

	template := entry.NumberTemplate
	if template == "" {
		template = format.DefaultTemplate
	}
	if err := format.ValidateTemplate(template); err != nil {
		return Definition{}, fmt.Errorf("%w: document type %s: %w", ErrInvalidConfiguration, docType, err)
	}

	lifecycleName := entry.Lifecycle
	if lifecycleName == "" {
		lifecycleName = string(docType)
	}
	lifecycle, ok := lifecycles[lifecycleName]
	if !ok {
		return Definition{}, fmt.Errorf("%w: document type %s references unknown lifecycle %q", ErrInvalidConfiguration, docType, lifecycleName)
	}

	return Definition{
		Type:           docType,
		Prefix:         entry.Prefix,
		ResetMonth:     entry.ResetMonth,
		Policy:         policy,
		NumberTemplate: template,
		Lifecycle:      lifecycle,
	}, nil
}

// Location is the business calendar document dates and financial years are
// read in.
func (r *Registry) Location() *time.Location {
	if r == nil || r.location == nil {
		return time.UTC
	}
	return r.location
}

// InCalendar moves t into the business calendar. The instant is unchanged.
func (r *Registry) InCalendar(t time.Time) time.Time {
	return t.In(r.Location())
}

func (r *Registry) Get(t DocumentType) (Definition, error) {
	def, ok := r.defs[t]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownDocumentType, t)
	}
	return def, nil
}

// Types returns the configured document types in stable order.
func (r *Registry) Types() []DocumentType {
	out := make([]DocumentType, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Definitions returns every definition in the order of Types.
func (r *Registry) Definitions() []Definition {
	types := r.Types()
	out := make([]Definition, 0, len(types))
	for _, t := range types {
		out = append(out, r.defs[t])
	}
	return out
}
