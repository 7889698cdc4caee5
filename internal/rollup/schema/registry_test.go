package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

func TestRegistryResolve(t *testing.T) {
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	m, err := r.Resolve(" vulnerability ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.SourceType() != types.SourceVulnerability {
		t.Fatalf("source type: got=%s", m.SourceType())
	}
	_, err = r.Resolve("unknown")
	if !errors.Is(err, types.ErrUnregisteredSourceType) {
		t.Fatalf("expected ErrUnregisteredSourceType, got=%v", err)
	}
	if types.KindOf(err) != types.KindConfiguration {
		t.Fatalf("unregistered type should be a configuration error, got=%s", types.KindOf(err))
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSpec(findingsSpec()); err != nil {
		t.Fatalf("RegisterSpec: %v", err)
	}
	if err := r.RegisterSpec(findingsSpec()); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected nil mapper error")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	if err := a.RegisterSpec(findingsSpec()); err != nil {
		t.Fatalf("RegisterSpec: %v", err)
	}
	if _, err := b.Resolve("findings"); err == nil {
		t.Fatalf("registries should not share state")
	}
}

const definitionsYAML = `
source_types:
  - name: patching
    identity: [org_unit, {name: host, source: hostname}]
    header:
      - {name: owner, required: true}
      - {name: patched_on, kind: date}
    item: {key: kb_id, fields: [title]}
    category: {name: classification}
`

func TestParseDefinitions(t *testing.T) {
	specs, err := ParseDefinitions(strings.NewReader(definitionsYAML))
	if err != nil {
		t.Fatalf("ParseDefinitions: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("specs: want=1 got=%d", len(specs))
	}
	s := specs[0]
	if s.SourceType != "patching" || s.Identity[1].SourceName() != "hostname" || s.Item.Key.Name != "kb_id" {
		t.Fatalf("unexpected spec: %+v", s)
	}
	m, err := NewMapper(s)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	h, err := m.MapHeader(types.RawRecord{"org_unit": "LOB2", "hostname": "web-1", "owner": "Lee", "patched_on": "2024-05-01T10:00:00Z"})
	if err != nil {
		t.Fatalf("MapHeader: %v", err)
	}
	if h.Attributes["patched_on"] != (civil.Date{Year: 2024, Month: time.May, Day: 1}) {
		t.Fatalf("patched_on: got=%v", h.Attributes["patched_on"])
	}
}

func TestParseDefinitionsRejectsInvalid(t *testing.T) {
	bad := `
source_types:
  - name: broken
    identity: []
    item: {key: x}
    category: {name: y}
`
	if _, err := ParseDefinitions(strings.NewReader(bad)); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ParseDefinitions(strings.NewReader("source_types: [{name: x, bogus: 1}]")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestRegisterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(path, []byte(definitionsYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	n, err := RegisterFile(r, path)
	if err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if n != 1 || len(r.Types()) != 3 {
		t.Fatalf("registered=%d types=%v", n, r.Types())
	}
}
