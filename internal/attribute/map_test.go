package attribute

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewMap_Validation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		wantErr error
	}{
		{
			name:    "empty",
			defs:    nil,
			wantErr: ErrEmptyMap,
		},
		{
			name:    "empty name",
			defs:    []Definition{{Name: " ", Address: "ns=2;s=a"}},
			wantErr: ErrInvalidDefinition,
		},
		{
			name:    "empty address",
			defs:    []Definition{{Name: "A"}},
			wantErr: ErrInvalidDefinition,
		},
		{
			name: "duplicate name differs only in case",
			defs: []Definition{
				{Name: "STATE", Address: "ns=2;s=a"},
				{Name: "state", Address: "ns=2;s=b"},
			},
			wantErr: ErrDuplicateName,
		},
		{
			name: "shared address",
			defs: []Definition{
				{Name: "A", Address: "ns=2;s=x"},
				{Name: "B", Address: "ns=2;s=x"},
			},
			wantErr: ErrDuplicateAddress,
		},
		{
			name: "valid",
			defs: []Definition{
				{Name: "A", Address: "ns=2;s=a"},
				{Name: "B", Address: "ns=2;s=b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMap(tt.defs)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewMap() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewMap() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMap_RoundTrip(t *testing.T) {
	m, err := NewMap(LIDAR(2))
	if err != nil {
		t.Fatalf("NewMap(LIDAR) error = %v", err)
	}

	for _, name := range m.Names() {
		addr, ok := m.Address(name)
		if !ok {
			t.Fatalf("Address(%q) not found", name)
		}
		back, ok := m.Attribute(addr)
		if !ok || back != name {
			t.Errorf("Attribute(Address(%q)) = %q, %v", name, back, ok)
		}
	}
}

func TestMap_Lookups(t *testing.T) {
	m, err := NewMap(LIDAR(2))
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}

	addr, ok := m.Address("heartbeat")
	if !ok || addr != "ns=2;s=heartbeat" {
		t.Errorf("Address(heartbeat) = %q, %v", addr, ok)
	}

	name, ok := m.Attribute("ns=2;s=lidar_get_ElasticChannel355Nm")
	if !ok || name != "ELASTIC_CHANNEL_355_NM" {
		t.Errorf("Attribute() = %q, %v", name, ok)
	}

	if _, ok := m.Attribute("ns=2;s=nope"); ok {
		t.Error("Attribute() found an unmapped address")
	}

	if got := m.First().Name; got != "STATE" {
		t.Errorf("First().Name = %q, want STATE", got)
	}

	if got, _ := m.Canonical("elastic_channel_532_nm"); got != "ELASTIC_CHANNEL_532_NM" {
		t.Errorf("Canonical() = %q", got)
	}

	def, ok := m.Definition("verbose_status")
	if !ok || def.Kind != KindBoolean || def.Group != GroupStatus {
		t.Errorf("Definition(verbose_status) = %+v, %v", def, ok)
	}

	if len(m.Addresses()) != m.Len() || len(m.Names()) != m.Len() {
		t.Error("Addresses()/Names() length mismatch")
	}
}

func TestLIDAR_Namespace(t *testing.T) {
	defs := LIDAR(5)
	if defs[0].Address != "ns=5;s=lidar_get_state" {
		t.Errorf("first address = %q, want ns=5;s=lidar_get_state", defs[0].Address)
	}
}

func TestMap_Graphable(t *testing.T) {
	m, err := NewMap([]Definition{
		{Name: "NAME", Address: "a", Kind: KindString},
		{Name: "FLAG", Address: "b", Kind: KindBoolean},
		{Name: "COUNT", Address: "c", Kind: KindInteger},
		{Name: "LEVEL", Address: "d", Kind: KindFloat},
	})
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}

	got := m.Graphable()
	want := []string{"FLAG", "COUNT", "LEVEL"}
	if len(got) != len(want) {
		t.Fatalf("Graphable() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Graphable()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMap_GraphableFallback(t *testing.T) {
	m, err := NewMap([]Definition{
		{Name: "HEARTBEAT", Address: "a", Kind: KindString},
		{Name: "NAME", Address: "b", Kind: KindString},
	})
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}

	got := m.Graphable("heartbeat", "MISSING")
	if len(got) != 1 || got[0] != "HEARTBEAT" {
		t.Errorf("Graphable(fallback) = %v, want [HEARTBEAT]", got)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"string", KindString, false},
		{"bool", KindBoolean, false},
		{"Boolean", KindBoolean, false},
		{"int32", KindInteger, false},
		{"double", KindFloat, false},
		{"complex", KindString, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	content := `
attributes:
  - name: HEARTBEAT
    address: "ns=3;s=hb"
    kind: int
  - name: LABEL
    address: "ns=3;s=label"
`
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write attribute file: %v", err)
	}

	m, err := Load(path, 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	def, _ := m.Definition("HEARTBEAT")
	if def.Kind != KindInteger || def.Address != "ns=3;s=hb" {
		t.Errorf("HEARTBEAT = %+v", def)
	}
	def, _ = m.Definition("LABEL")
	if def.Kind != KindString {
		t.Errorf("LABEL kind = %v, want string default", def.Kind)
	}
}

func TestLoad_BuiltIn(t *testing.T) {
	m, err := Load("", 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Len() != len(lidarNodes) {
		t.Errorf("Len() = %d, want %d", m.Len(), len(lidarNodes))
	}
}

func TestLoad_BadKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	content := "attributes:\n  - name: A\n    address: a\n    kind: matrix\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write attribute file: %v", err)
	}
	if _, err := Load(path, 2); err == nil {
		t.Error("Load() expected error for unknown kind")
	}
}
