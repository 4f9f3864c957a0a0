package zon

import (
	"encoding/json"
	"testing"
)

// mustTranslate translates src and verifies the result is strict JSON.
func mustTranslate(t *testing.T, src string) map[string]any {
	t.Helper()
	out, err := Translate(src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	return m
}

func TestTranslate_BasicManifest(t *testing.T) {
	src := `.{
		.name = "foo",
		.version = "1.0.0",
		.paths = .{ "src", "build.zig" },
	}`
	m := mustTranslate(t, src)
	if m["name"] != "foo" {
		t.Errorf("name = %v, want foo", m["name"])
	}
	if m["version"] != "1.0.0" {
		t.Errorf("version = %v, want 1.0.0", m["version"])
	}
	paths, ok := m["paths"].([]any)
	if !ok {
		t.Fatalf("paths is %T, want array", m["paths"])
	}
	if len(paths) != 2 || paths[0] != "src" || paths[1] != "build.zig" {
		t.Errorf("paths = %v", paths)
	}
}

func TestTranslate_DependenciesRoundTrip(t *testing.T) {
	src := `.{
		.name = "foo",
		.dependencies = .{
			.bar = .{
				.url = "https://example.com/bar.tgz#v1",
				.hash = "h1",
			},
			.@"weird-name" = .{
				.path = "./vendor/weird",
			},
		},
	}`
	m := mustTranslate(t, src)
	deps := m["dependencies"].(map[string]any)
	bar := deps["bar"].(map[string]any)
	if bar["url"] != "https://example.com/bar.tgz#v1" {
		t.Errorf("url = %v", bar["url"])
	}
	if bar["hash"] != "h1" {
		t.Errorf("hash = %v", bar["hash"])
	}
	weird := deps["weird-name"].(map[string]any)
	if weird["path"] != "./vendor/weird" {
		t.Errorf("path = %v", weird["path"])
	}
}

func TestTranslate_URLCharactersPreserved(t *testing.T) {
	src := `.{ .url = "https://host/a?b=c&d=e#frag" }`
	m := mustTranslate(t, src)
	if m["url"] != "https://host/a?b=c&d=e#frag" {
		t.Errorf("url = %v, want query and fragment intact", m["url"])
	}
}

func TestTranslate_SlashesInStringNotComment(t *testing.T) {
	// "//" inside a string must never be stripped as a comment,
	// including a second "//" inside the query string.
	src := `.{ .url = "https://example.com/x?redir=https://other//deep" }`
	m := mustTranslate(t, src)
	if m["url"] != "https://example.com/x?redir=https://other//deep" {
		t.Errorf("url truncated: %v", m["url"])
	}
}

func TestTranslate_CommentsStripped(t *testing.T) {
	src := `.{
		// leading comment
		.name = "foo", // trailing comment
		.version = "0.1.0",
	}`
	m := mustTranslate(t, src)
	if m["name"] != "foo" || m["version"] != "0.1.0" {
		t.Errorf("m = %v", m)
	}
}

func TestTranslate_EmptyLiterals(t *testing.T) {
	m := mustTranslate(t, `.{ .dependencies = .{}, .nested = .{ .inner = .{} } }`)
	if deps, ok := m["dependencies"].(map[string]any); !ok || len(deps) != 0 {
		t.Errorf("dependencies = %v, want empty object", m["dependencies"])
	}
	nested := m["nested"].(map[string]any)
	if inner, ok := nested["inner"].(map[string]any); !ok || len(inner) != 0 {
		t.Errorf("inner = %v", nested["inner"])
	}
}

func TestTranslate_SingleEmptyStringPaths(t *testing.T) {
	// .paths = .{""} means "the whole tree" and is a positional literal.
	m := mustTranslate(t, `.{ .paths = .{""} }`)
	paths := m["paths"].([]any)
	if len(paths) != 1 || paths[0] != "" {
		t.Errorf("paths = %v, want [\"\"]", paths)
	}
}

func TestTranslate_EnumLiteralName(t *testing.T) {
	m := mustTranslate(t, `.{ .name = .raido, .version = "0.0.1" }`)
	if m["name"] != "raido" {
		t.Errorf("name = %v, want raido", m["name"])
	}
}

func TestTranslate_Numbers(t *testing.T) {
	m := mustTranslate(t, `.{
		.fingerprint = 0x52fd9e229052c0a9,
		.count = 1_000,
		.neg = -7,
		.ratio = 1.5,
	}`)
	if m["fingerprint"] != float64(0x52fd9e229052c0a9) {
		t.Errorf("fingerprint = %v", m["fingerprint"])
	}
	if m["count"] != float64(1000) {
		t.Errorf("count = %v", m["count"])
	}
	if m["neg"] != float64(-7) {
		t.Errorf("neg = %v", m["neg"])
	}
	if m["ratio"] != 1.5 {
		t.Errorf("ratio = %v", m["ratio"])
	}
}

func TestTranslate_BoolsAndLazy(t *testing.T) {
	m := mustTranslate(t, `.{ .dependencies = .{ .dep = .{ .path = "../dep", .lazy = true } } }`)
	dep := m["dependencies"].(map[string]any)["dep"].(map[string]any)
	if dep["lazy"] != true {
		t.Errorf("lazy = %v", dep["lazy"])
	}
}

func TestTranslate_StringEscapes(t *testing.T) {
	m := mustTranslate(t, `.{ .s = "a\"b\\c\nd\x41\u{1F600}" }`)
	if m["s"] != "a\"b\\c\nd\x41\U0001F600" {
		t.Errorf("s = %q", m["s"])
	}
}

func TestTranslate_MultilineString(t *testing.T) {
	src := ".{ .desc = \n\\\\line one\n\\\\line two\n, .v = \"1\" }"
	m := mustTranslate(t, src)
	if m["desc"] != "line one\nline two" {
		t.Errorf("desc = %q", m["desc"])
	}
}

func TestTranslate_TrailingCommaEverywhere(t *testing.T) {
	m := mustTranslate(t, `.{ .paths = .{ "a", "b", }, .name = "x", }`)
	if len(m["paths"].([]any)) != 2 {
		t.Errorf("paths = %v", m["paths"])
	}
}

func TestTranslate_MalformedInput(t *testing.T) {
	cases := []string{
		`.{ .name = }`,
		`.{ .name "foo" }`,
		`.{ .name = "unterminated }`,
		`.{ .a = 1 .b = 2 }`,
		`.{} trailing`,
		``,
	}
	for _, src := range cases {
		if _, err := Translate(src); err == nil {
			t.Errorf("Translate(%q) should fail", src)
		}
	}
}

func TestParse_ObjectFieldOrderKept(t *testing.T) {
	v, err := Parse(`.{ .b = "1", .a = "2" }`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Kind != KindObject || len(v.Fields) != 2 {
		t.Fatalf("v = %+v", v)
	}
	if v.Fields[0].Name != "b" || v.Fields[1].Name != "a" {
		t.Errorf("field order = %v, %v", v.Fields[0].Name, v.Fields[1].Name)
	}
}
