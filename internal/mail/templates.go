package mail

import (
	"embed"
	"fmt"
	"time"

	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var templateFiles embed.FS

const (
	templatePasswordReset     = "password_reset"
	templateEmailVerification = "email_verification"
)

var subjects = map[string]string{
	templatePasswordReset:     "Your password reset code",
	templateEmailVerification: "Confirm your email address",
}

// Composer renders the message bodies from the embedded Liquid templates.
type Composer struct {
	templates map[string]*liquid.Template
}

func NewComposer() (*Composer, error) {
	engine := liquid.NewEngine()
	c := &Composer{templates: make(map[string]*liquid.Template, len(subjects))}

	for name := range subjects {
		source, err := templateFiles.ReadFile("templates/" + name + ".liquid")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, err := engine.ParseString(string(source))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		c.templates[name] = tpl
	}

	return c, nil
}

func (c *Composer) PasswordReset(to, name, code string, ttl time.Duration) (Message, error) {
	return c.render(templatePasswordReset, to, map[string]any{
		"name":    name,
		"code":    code,
		"minutes": int(ttl.Minutes()),
	})
}

func (c *Composer) EmailVerification(to, name, code string, ttl time.Duration) (Message, error) {
	return c.render(templateEmailVerification, to, map[string]any{
		"name":    name,
		"email":   to,
		"code":    code,
		"minutes": int(ttl.Minutes()),
	})
}

func (c *Composer) render(name, to string, bindings map[string]any) (Message, error) {
	text, err := c.templates[name].RenderString(bindings)
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: subjects[name], Text: text}, nil
}
