// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rag

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v2"
)

// Prompts holds the texts sent to the chat model.
//
// User is a text/template rendered with the fields `.Context` and `.Query`.
type Prompts struct {
	System    string `yaml:"system"`
	User      string `yaml:"user"`
	NoContext string `yaml:"no_context"`
	Separator string `yaml:"separator"`
}

var DefaultPrompts = Prompts{
	System: "Você é um assistente de IA prestativo. " +
		"Responda à pergunta do usuário usando o contexto fornecido. " +
		"Se o contexto não for suficiente, diga isso educadamente.",
	User: "Use os trechos de contexto a seguir para responder.\n\n" +
		"Contexto:\n{{.Context}}\n\n" +
		"Pergunta: {{.Query}}\n\nResposta:",
	NoContext: "Nenhum contexto encontrado.",
	Separator: "\n\n---\n\n",
}

// LoadPrompts reads prompts from a yaml file, keys absent from the file keep their default value.
func LoadPrompts(path string) (Prompts, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("unable to read prompts file %q: %w", path, err)
	}

	prompts := Prompts{}
	err = yaml.UnmarshalStrict(content, &prompts)
	if err != nil {
		return Prompts{}, fmt.Errorf("unable to parse prompts file %q: %w", path, err)
	}

	err = mergo.Merge(&prompts, DefaultPrompts)
	if err != nil {
		return Prompts{}, fmt.Errorf("unable to apply default prompts: %w", err)
	}

	return prompts, nil
}

type userPromptData struct {
	Context string
	Query   string
}

type compiledPrompts struct {
	Prompts
	user *template.Template
}

func compilePrompts(prompts Prompts) (*compiledPrompts, error) {
	err := mergo.Merge(&prompts, DefaultPrompts)
	if err != nil {
		return nil, fmt.Errorf("unable to apply default prompts: %w", err)
	}

	user, err := template.New("user").Parse(prompts.User)
	if err != nil {
		return nil, fmt.Errorf("invalid user prompt template: %w", err)
	}

	return &compiledPrompts{
		Prompts: prompts,
		user:    user,
	}, nil
}

func (p *compiledPrompts) renderUser(context string, query string) (string, error) {
	b := &bytes.Buffer{}
	err := p.user.Execute(b, userPromptData{
		Context: context,
		Query:   query,
	})
	if err != nil {
		return "", fmt.Errorf("unable to render the user prompt: %w", err)
	}
	return b.String(), nil
}
