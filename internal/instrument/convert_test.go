package instrument

import "testing"

func TestAutoConvert(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{" FALSE ", false},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"lidar_get_state", "lidar_get_state"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := AutoConvert(tt.in); got != tt.want {
				t.Errorf("AutoConvert(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		hint    TypeHint
		want    any
		wantErr bool
	}{
		{"auto passthrough", "x", HintAuto, "x", false},
		{"bool from bool", true, HintBoolean, true, false},
		{"bool from string", "false", HintBoolean, false, false},
		{"bool from int", int64(1), HintBoolean, true, false},
		{"bool from garbage", "maybe", HintBoolean, nil, true},
		{"int32 from int64", int64(7), HintInt32, int32(7), false},
		{"int32 from string", "12", HintInt32, int32(12), false},
		{"int32 from fractional", 1.5, HintInt32, nil, true},
		{"int32 from bool", true, HintInt32, int32(1), false},
		{"double from int", int64(3), HintDouble, 3.0, false},
		{"double from string", "0.25", HintDouble, 0.25, false},
		{"string from float", 1.5, HintString, "1.5", false},
		{"double from struct", struct{}{}, HintDouble, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.hint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Coerce() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseTypeHint(t *testing.T) {
	tests := []struct {
		in      string
		want    TypeHint
		wantErr bool
	}{
		{"", HintAuto, false},
		{"Boolean", HintBoolean, false},
		{"int32", HintInt32, false},
		{"DOUBLE", HintDouble, false},
		{"string", HintString, false},
		{"uint64", HintAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTypeHint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTypeHint(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTypeHint(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
