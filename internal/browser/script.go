package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Script is a form-filling session loaded from YAML:
//
//	url: http://localhost:18888/WebGoat/start.mvc#lesson/PasswordReset.lesson/3
//	steps:
//	  - fill: {field: username, value: webgoat}
//	  - fill: {field: password, value_env: WEBGOAT_PASSWORD}
//	  - click_text: Sign in
//	  - wait: 1s
type Script struct {
	URL   string `yaml:"url"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Visit     string        `yaml:"visit,omitempty"`
	Fill      *Fill         `yaml:"fill,omitempty"`
	Click     string        `yaml:"click,omitempty"`
	ClickText string        `yaml:"click_text,omitempty"`
	Wait      time.Duration `yaml:"wait,omitempty"`
}

// Fill types a value into the input named Field.
type Fill struct {
	Field    string `yaml:"field"`
	Value    string `yaml:"value,omitempty"`
	ValueEnv string `yaml:"value_env,omitempty"`
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) Validate() error {
	if s.URL == "" && (len(s.Steps) == 0 || s.Steps[0].Visit == "") {
		return errors.New("script needs a url or a leading visit step")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	n := 0
	if s.Visit != "" {
		n++
	}
	if s.Fill != nil {
		n++
		if s.Fill.Field == "" {
			return errors.New("fill without field")
		}
		if s.Fill.Value != "" && s.Fill.ValueEnv != "" {
			return errors.New("fill has both value and value_env")
		}
	}
	if s.Click != "" {
		n++
	}
	if s.ClickText != "" {
		n++
	}
	if s.Wait > 0 {
		n++
	}
	switch n {
	case 0:
		return errors.New("empty step")
	case 1:
		return nil
	default:
		return errors.New("step has more than one action")
	}
}

// String names the action without the filled value.
func (s Step) String() string {
	switch {
	case s.Visit != "":
		return "visit " + s.Visit
	case s.Fill != nil:
		return "fill " + s.Fill.Field
	case s.Click != "":
		return "click " + s.Click
	case s.ClickText != "":
		return fmt.Sprintf("click_text %q", s.ClickText)
	case s.Wait > 0:
		return "wait " + s.Wait.String()
	}
	return "empty"
}

func (f Fill) value() (string, error) {
	if f.ValueEnv == "" {
		return f.Value, nil
	}
	v, ok := os.LookupEnv(f.ValueEnv)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", f.ValueEnv)
	}
	return v, nil
}

func (f Fill) selector() string {
	return fmt.Sprintf(`[name=%q]`, f.Field)
}

// RunScript opens a page and executes the steps in order, stopping at the
// first failure.
func (b *Browser) RunScript(ctx context.Context, s *Script) error {
	if err := s.Validate(); err != nil {
		return err
	}

	page, err := b.newPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if s.URL != "" {
		if err := b.visit(page, s.URL); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		b.logger.Debug("script step", zap.Int("step", i+1), zap.Stringer("action", step))

		var err error
		switch {
		case step.Visit != "":
			err = b.visit(page, step.Visit)
		case step.Fill != nil:
			var v string
			if v, err = step.Fill.value(); err == nil {
				err = b.fill(page, step.Fill.selector(), v)
			}
		case step.Click != "":
			err = b.click(page, step.Click)
		case step.ClickText != "":
			err = b.clickText(page, step.ClickText)
		case step.Wait > 0:
			select {
			case <-time.After(step.Wait):
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	return nil
}
