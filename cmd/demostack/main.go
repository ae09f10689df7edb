// Command demostack runs the local collaborators the audit service expects:
// a sample target site, a PageSpeed-style metrics API and an Ollama-style
// generation endpoint. Point the service at it for an end-to-end run without
// external dependencies:
//
//	AUDITORIA_METRICS_API_URL=http://localhost:8081/pagespeed \
//	AUDITORIA_LLM_ENDPOINT=http://localhost:8081 go run .
package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/auditlab/auditoria/internal/logging"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Loja Demo — Tênis e Acessórios</title>
  <meta name="description" content="Loja de demonstração com tênis de corrida, casual e acessórios esportivos.">
  <meta name="robots" content="index, follow">
  <link rel="canonical" href="http://localhost:8081/site">
</head>
<body>
  <h1>Tênis em destaque</h1>
  <h2>Corrida</h2>
  <h2>Casual</h2>
  <img src="/img/a.jpg" alt="Tênis de corrida azul">
  <img src="/img/b.jpg">
  <a href="/site/corrida">Corrida</a>
  <a href="/site/casual">Casual</a>
  <a href="https://example.org/parceiro">Parceiro</a>
  <p>Loja de demonstração para auditorias locais. Frete grátis em compras acima de cem reais.
  Todos os produtos têm garantia de trinta dias e troca gratuita na primeira semana.</p>
</body>
</html>`

func main() {
	logger := logging.NewStdoutLogger("demostack")
	mux := http.NewServeMux()

	mux.HandleFunc("/site", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	})
	mux.HandleFunc("/site/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	})

	mux.HandleFunc("/pagespeed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"performance_mobile":    78.0,
			"performance_desktop":   "93", // upstream really does this sometimes
			"first_contentful_ms":   1400,
			"largest_contentful_ms": nil,
		})
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"response": "A auditoria encontrou uma página bem estruturada, com título e meta description adequados. " +
				"A performance mobile está abaixo do ideal e uma das imagens não possui texto alternativo. " +
				"Recomenda-se otimizar as imagens e revisar os atributos alt.",
			"done": true,
		})
	})

	addr := ":8081"
	logger.Info("demo stack listening", logging.Field{Key: "addr", Value: addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("demo stack stopped", logging.Field{Key: "error", Value: err.Error()})
	}
}
