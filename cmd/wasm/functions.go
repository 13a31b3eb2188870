//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"syscall/js"

	"github.com/speakeasy-api/blockjit/pkg/listing"
	"github.com/speakeasy-api/blockjit/pkg/scriptfile"
	"github.com/speakeasy-api/blockjit/typeanalysis"
	"gopkg.in/yaml.v3"
)

// AnalysisResult is returned to the playground as JSON.
type AnalysisResult struct {
	Listing     string   `json:"listing"`
	Annotated   string   `json:"annotated"`
	Schema      string   `json:"schema"`
	Fingerprint string   `json:"fingerprint"`
	Warnings    []string `json:"warnings"`
}

// AnalyzeTypes loads a YAML script, analyses it and returns every view of
// the result.
func AnalyzeTypes(scriptYAML string) (*AnalysisResult, error) {
	s, err := scriptfile.Parse([]byte(scriptYAML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	res, err := typeanalysis.AnalyzeScript(s.List)
	if err != nil {
		return nil, fmt.Errorf("type analysis failed: %w", err)
	}

	out := &AnalysisResult{
		Listing:     listing.Format(s.List, listing.Options{}),
		Fingerprint: res.Fingerprint,
		Warnings:    res.Warnings,
	}

	s.Annotate()
	annotated, err := s.Marshal()
	if err != nil {
		return nil, err
	}
	out.Annotated = string(annotated)

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(typeanalysis.SchemaNode(res.Schema())); err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	_ = enc.Close()
	out.Schema = buf.String()

	return out, nil
}

// promisify wraps a Go function to return a JavaScript Promise
func promisify(fn func(args []js.Value) (string, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) any {
			resolve := promiseArgs[0]
			reject := promiseArgs[1]

			go func() {
				result, err := fn(args)
				if err != nil {
					errorConstructor := js.Global().Get("Error")
					reject.Invoke(errorConstructor.New(err.Error()))
					return
				}
				resolve.Invoke(result)
			}()

			return nil
		})

		promiseConstructor := js.Global().Get("Promise")
		return promiseConstructor.New(handler)
	})
}

func main() {
	js.Global().Set("AnalyzeTypes", promisify(func(args []js.Value) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("AnalyzeTypes: expected 1 arg (scriptYAML), got %v", len(args))
		}

		result, err := AnalyzeTypes(args[0].String())
		if err != nil {
			return "", err
		}

		jsonBytes, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("failed to marshal analysis result: %w", err)
		}
		return string(jsonBytes), nil
	}))

	// Keep the program running
	<-make(chan bool)
}
