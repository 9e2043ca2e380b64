package soy

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/archimag/soy-go/parser"
	"github.com/archimag/soy-go/value"
)

func TestAddFileReturnsNames(t *testing.T) {
	env := NewEnvironment()
	names, err := env.AddFile("pages.soy", `{namespace site.pages}
/** The index page. */
{template .index}index{/template}
{template .about}about{/template}
{template plain}plain{/template}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	want := []string{"site.pages.index", "site.pages.about", "plain"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, names)
	}
	if got := env.TemplateNames(); fmt.Sprint(got) != "[plain site.pages.about site.pages.index]" {
		t.Errorf("unexpected sorted names %v", got)
	}

	tmpl, err := env.GetTemplate("site.pages.about")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Name() != "site.pages.about" {
		t.Errorf("unexpected name %q", tmpl.Name())
	}
	if tmpl.Source() == "" {
		t.Error("expected the file source to be kept")
	}
}

func TestAddTemplate(t *testing.T) {
	env := NewEnvironment()
	if err := env.AddTemplate("greeting", "Hello {$name}!"); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := env.AddTemplate("raw", `{template .raw autoescape="false"}<{$tag}>{/template}`); err != nil {
		t.Fatalf("parse error: %v", err)
	}

	out, err := env.Render("greeting", map[string]any{"name": "<World>"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "Hello &lt;World&gt;!" {
		t.Errorf("unexpected output %q", out)
	}

	out, err = env.Render("raw", map[string]any{"tag": "b"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "<b>" {
		t.Errorf("unexpected output %q", out)
	}

	err = env.AddTemplate("broken", "{if $x}")
	expectKind(t, err, ErrUnterminatedBlock)
	if _, err := env.GetTemplate("broken"); err == nil {
		t.Error("broken template should not be registered")
	}
}

func TestRegisterParsedTemplate(t *testing.T) {
	tmpl, err := parser.ParseTemplate("{$a + $b}", "sum")
	if err != nil {
		t.Fatal(err)
	}
	env := NewEnvironment()
	env.Register("math.sum", tmpl)

	out, err := env.RenderValue("math.sum", value.FromAny(map[string]any{"a": 1, "b": 2}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "3" {
		t.Errorf("expected 3, got %q", out)
	}
}

func TestRenderStructData(t *testing.T) {
	type author struct {
		Name string
		City string
	}
	env := NewEnvironment()
	if err := env.AddTemplate("t", "{$author.Name} from {$author.City}"); err != nil {
		t.Fatal(err)
	}
	out, err := env.Render("t", map[string]any{"author": author{Name: "Masha", City: "Krasnodar"}})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "Masha from Krasnodar" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRegisterOverwriteLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	env := NewEnvironment()
	env.SetLogger(zap.New(core))

	if err := env.AddTemplate("t", "one"); err != nil {
		t.Fatal(err)
	}
	if err := env.AddTemplate("t", "two"); err != nil {
		t.Fatal(err)
	}
	out, err := env.Render("t", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "two" {
		t.Errorf("last registration should win, got %q", out)
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnings) != 1 || warnings[0].Message != "template replaced" {
		t.Errorf("expected one replacement warning, got %v", warnings)
	}
	if rendered := logs.FilterMessage("rendered").Len(); rendered != 1 {
		t.Errorf("expected one render log entry, got %d", rendered)
	}

	env.SetLogger(nil)
	if _, err := env.Render("t", nil); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentRenders(t *testing.T) {
	env := NewEnvironment()
	if _, err := env.AddFile("c.soy", `{namespace c}
{template .item}<{$n}>{/template}
{template .list}{foreach $n in $ns}{call .item}{param n: $n /}{/call}{/foreach}{/template}`); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := env.Render("c.list", map[string]any{"ns": []int{i, i + 1}})
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("<%d><%d>", i, i+1); out != want {
				errs <- fmt.Errorf("expected %q, got %q", want, out)
			}
			if err := env.AddTemplate(fmt.Sprintf("extra%d", i), "x"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
