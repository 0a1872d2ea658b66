package profile

import "testing"

func TestRegistryDefaults(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, name := range []string{"python", "javascript"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Fatalf("missing default language %q", name)
		}
	}
	if _, ok := reg.Lookup("cobol"); ok {
		t.Fatalf("unexpected language resolved")
	}
}

func TestArgvSubstitutesCode(t *testing.T) {
	argv, err := Argv(`python3 -c {code}`, `print("hi there")`)
	if err != nil {
		t.Fatalf("argv: %v", err)
	}
	if len(argv) != 3 {
		t.Fatalf("expected 3 args, got %v", argv)
	}
	if argv[2] != `print("hi there")` {
		t.Fatalf("code not substituted verbatim: %q", argv[2])
	}
}

func TestArgvCodeNeverReparsed(t *testing.T) {
	// Code containing quotes and spaces must stay one argument.
	code := `print('a b'); print("c d")`
	argv, err := Argv(`node -e {code}`, code)
	if err != nil {
		t.Fatalf("argv: %v", err)
	}
	if argv[len(argv)-1] != code {
		t.Fatalf("code was mangled: %q", argv[len(argv)-1])
	}
}

func TestNewRegistryRejectsBadTemplate(t *testing.T) {
	_, err := NewRegistry([]Language{{Name: "broken", Command: `python3 -c "unterminated`}})
	if err == nil {
		t.Fatalf("expected template parse error")
	}
}

func TestNewRegistryRejectsMissingName(t *testing.T) {
	_, err := NewRegistry([]Language{{Command: "python3"}})
	if err == nil {
		t.Fatalf("expected missing name error")
	}
}
