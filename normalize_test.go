package main

import (
	"testing"
)

func TestNormalizeType_Aliases(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"INTEGER", "integer"},
		{"int", "integer"},
		{"int4", "integer"},
		{"pg_catalog.int4", "integer"},
		{"BIGINT", "bigint"},
		{"int8", "bigint"},
		{"SMALLINT", "smallint"},
		{"int2", "smallint"},
		{"VARCHAR(255)", "character varying(255)"},
		{"CHARACTER VARYING(255)", "character varying(255)"},
		{"character varying(255)", "character varying(255)"},
		{"TEXT", "text"},
		{"BOOLEAN", "boolean"},
		{"BOOL", "boolean"},
		{"TIMESTAMP", "timestamp without time zone"},
		{"TIMESTAMP WITHOUT TIME ZONE", "timestamp without time zone"},
		{"TIMESTAMPTZ", "timestamp with time zone"},
		{"TIMESTAMP WITH TIME ZONE", "timestamp with time zone"},
		{"DECIMAL(10,2)", "numeric(10,2)"},
		{"NUMERIC(10,2)", "numeric(10,2)"},
		{"numeric(10, 2)", "numeric(10,2)"},
		{"double precision", "double precision"},
		{"float8", "double precision"},
		{"real", "real"},
		{"time", "time without time zone"},
	}

	for _, tc := range cases {
		if got := NormalizeType(tc.input); got != tc.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeType_AliasPairsCompareEqual(t *testing.T) {
	pairs := [][2]string{
		{"INTEGER", "int4"},
		{"BIGINT", "int8"},
		{"VARCHAR(100)", "character varying(100)"},
		{"DECIMAL(8,3)", "numeric(8,3)"},
		{"BOOL", "boolean"},
		{"TIMESTAMPTZ", "timestamp with time zone"},
	}
	for _, p := range pairs {
		if NormalizeType(p[0]) != NormalizeType(p[1]) {
			t.Errorf("expected %q and %q to normalize identically, got %q vs %q",
				p[0], p[1], NormalizeType(p[0]), NormalizeType(p[1]))
		}
	}
}

func TestNormalizeType_Serial(t *testing.T) {
	canonical, serial := normalizeTypeSerial("SERIAL")
	if !serial || canonical != "integer" {
		t.Errorf("SERIAL: got (%q, %v), want (integer, true)", canonical, serial)
	}
	canonical, serial = normalizeTypeSerial("bigserial")
	if !serial || canonical != "bigint" {
		t.Errorf("bigserial: got (%q, %v), want (bigint, true)", canonical, serial)
	}
	if _, serial := normalizeTypeSerial("integer"); serial {
		t.Error("integer must not report as serial")
	}
}

func TestNormalizeDefault_StripsTrailingCasts(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"'0.00'::character varying", "'0.00'"},
		{"'hello'::text", "'hello'"},
		{"'{}'::jsonb", "'{}'"},
		{"100.00", "100.00"},
		{"'2024-01-01'::timestamp without time zone", "'2024-01-01'"},
		{"'x'::character varying(255)", "'x'"},
		{"('x'::text)", "'x'"},
	}
	for _, tc := range cases {
		if got := NormalizeDefault(tc.input); got != tc.want {
			t.Errorf("NormalizeDefault(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeDefault_Idempotent(t *testing.T) {
	// normalize(x::T) == normalize(x) == x for known casts
	inputs := []string{"'abc'", "42", "true", "now()"}
	for _, x := range inputs {
		if NormalizeDefault(x) != x {
			t.Errorf("NormalizeDefault(%q) changed an already-normal value to %q", x, NormalizeDefault(x))
		}
		cast := x + "::text"
		if NormalizeDefault(cast) != x {
			t.Errorf("NormalizeDefault(%q) = %q, want %q", cast, NormalizeDefault(cast), x)
		}
	}
}

func TestNormalizeDefault_PreservesNextvalRegclass(t *testing.T) {
	in := "nextval('users_id_seq'::regclass)"
	if got := NormalizeDefault(in); got != in {
		t.Errorf("NormalizeDefault(%q) = %q, regclass cast must survive", in, got)
	}
	if !IsSerialDefault(in) {
		t.Errorf("IsSerialDefault(%q) = false, want true", in)
	}
	if IsSerialDefault("nextval('other'::regclass)") {
		t.Error("non-_seq nextval must not be a serial default")
	}
}

func TestNormalizeDefault_FunctionAliases(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"now()", "now()"},
		{"NOW()", "now()"},
		{"CURRENT_TIMESTAMP", "now()"},
		{"transaction_timestamp()", "now()"},
		{"CURRENT_DATE", "current_date"},
	}
	for _, tc := range cases {
		if got := NormalizeDefault(tc.input); got != tc.want {
			t.Errorf("NormalizeDefault(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestEqualDefaults(t *testing.T) {
	s := func(v string) *string { return &v }

	if !EqualDefaults(nil, nil) {
		t.Error("two absent defaults must compare equal")
	}
	if EqualDefaults(s("1"), nil) || EqualDefaults(nil, s("1")) {
		t.Error("present and absent defaults must compare unequal")
	}
	if !EqualDefaults(s("'a'::text"), s("'a'")) {
		t.Error("cast and uncast forms of the same literal must compare equal")
	}
	if EqualDefaults(s("'a'"), s("'b'")) {
		t.Error("different literals must compare unequal")
	}
	// Unknown function-call defaults err toward inequality
	if EqualDefaults(s("gen_random_uuid()"), s("uuid_generate_v4()")) {
		t.Error("unknown function defaults must compare unequal")
	}
}

func TestNormalizeIdent(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Users", "users"},
		{"USERS", "users"},
		{`"Users"`, "Users"},
		{`"weird""name"`, `weird"name`},
	}
	for _, tc := range cases {
		if got := NormalizeIdent(tc.input); got != tc.want {
			t.Errorf("NormalizeIdent(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeViewBody(t *testing.T) {
	a := "SELECT id,\n  name\nFROM users;"
	b := "select id, name from users"
	if NormalizeViewBody(a) != NormalizeViewBody(b) {
		t.Errorf("equivalent view bodies normalize differently: %q vs %q",
			NormalizeViewBody(a), NormalizeViewBody(b))
	}
}
