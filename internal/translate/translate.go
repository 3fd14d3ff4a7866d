package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// Stage names the pipeline stage this package reports backend errors under.
const Stage = "translate"

// DefaultLanguage is used when no target language is configured.
const DefaultLanguage = "Hindi"

const translatePrompt = `Translate the following report into %s.

Keep the markdown structure, headings and list formatting. Keep company names, product names and numbers unchanged. Output only the translation, without any preface or notes.

Report:
%s`

// Translator translates text through a language model.
type Translator struct {
	backend  llm.Backend
	language string
}

// NewTranslator creates a translator into language.
func NewTranslator(backend llm.Backend, language string) *Translator {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return &Translator{backend: backend, language: language}
}

// Language returns the target language.
func (t *Translator) Language() string { return t.language }

// Translate returns text in the target language. Blank input is returned
// as-is without a backend call.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	out, err := t.backend.Generate(ctx, fmt.Sprintf(translatePrompt, t.language, text), nil)
	if err != nil {
		return "", llm.WrapError(Stage, t.backend, err)
	}

	logger.Log.Infof("Translated report to %s", t.language)
	return strings.TrimSpace(out), nil
}
