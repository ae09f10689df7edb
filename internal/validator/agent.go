package validator

import (
	"fmt"
	"strings"

	"github.com/auditlab/auditoria/internal/collector"
	"github.com/auditlab/auditoria/internal/logging"
)

// Length bounds used by the content checks. Values follow common SEO
// guidance for Brazilian Portuguese pages; they are heuristics, not hard
// search-engine rules.
const (
	minTitleLen       = 10
	maxTitleLen       = 60
	minDescriptionLen = 50
	maxDescriptionLen = 160
	minWordCount      = 300
)

// Agent runs the check battery. It is stateless and safe for concurrent use.
type Agent struct {
	logger logging.Logger
}

// NewAgent creates a validator agent.
func NewAgent(logger logging.Logger) *Agent {
	return &Agent{logger: logger.With(logging.Field{Key: "component", Value: "validator"})}
}

// Validate runs every applicable check. A nil document or metrics input
// skips the checks that need it; the battery never returns an error.
func (a *Agent) Validate(doc *collector.PageDocument, metrics *collector.PageMetrics) []*ValidationResult {
	var results []*ValidationResult

	if metrics != nil {
		results = append(results,
			a.checkPerformance("performance_mobile", metrics.PerformanceMobile),
			a.checkPerformance("performance_desktop", metrics.PerformanceDesktop),
		)
	}

	if doc != nil {
		results = append(results,
			a.checkTitle(doc),
			a.checkMetaDescription(doc),
			a.checkHeadings(doc),
			a.checkImageAlt(doc),
			a.checkHTTPS(doc),
			a.checkContentLength(doc),
			a.checkLinks(doc),
			a.checkIndexability(doc),
		)
	}

	a.logger.Info("validation complete", logging.Field{Key: "checks", Value: len(results)})
	return results
}

func (a *Agent) checkPerformance(validationType string, raw any) *ValidationResult {
	score := coerceScore(raw)

	status := StatusPassed
	message := fmt.Sprintf("pontuação de performance %.0f", score)
	switch {
	case score < 50:
		status = StatusFailed
		message = fmt.Sprintf("performance crítica: %.0f", score)
	case score < 90:
		status = StatusWarning
		message = fmt.Sprintf("performance abaixo do ideal: %.0f", score)
	}

	res := NewValidationResult(validationType, status, score, message)
	res.Details = map[string]any{"raw_value": raw}
	if status != StatusPassed {
		res.Recommendations = append(res.Recommendations,
			"Otimize imagens e reduza JavaScript bloqueante para melhorar a performance.")
	}
	return res
}

func (a *Agent) checkTitle(doc *collector.PageDocument) *ValidationResult {
	length := len([]rune(doc.Title))
	res := &ValidationResult{ValidationType: "title", Details: map[string]any{"length": length}}

	switch {
	case length == 0:
		res.Status = StatusFailed
		res.Score = 0
		res.Message = "página sem tag <title>"
		res.Recommendations = append(res.Recommendations, "Adicione um título descritivo à página.")
	case length < minTitleLen:
		res.Status = StatusWarning
		res.Score = 50
		res.Message = fmt.Sprintf("título muito curto (%d caracteres)", length)
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Use ao menos %d caracteres no título.", minTitleLen))
	case length > maxTitleLen:
		res.Status = StatusWarning
		res.Score = 60
		res.Message = fmt.Sprintf("título muito longo (%d caracteres)", length)
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Mantenha o título abaixo de %d caracteres.", maxTitleLen))
	default:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = "título dentro do tamanho recomendado"
	}
	return res
}

func (a *Agent) checkMetaDescription(doc *collector.PageDocument) *ValidationResult {
	length := len([]rune(doc.MetaDescription))
	res := &ValidationResult{ValidationType: "meta_description", Details: map[string]any{"length": length}}

	switch {
	case length == 0:
		res.Status = StatusFailed
		res.Score = 0
		res.Message = "página sem meta description"
		res.Recommendations = append(res.Recommendations, "Adicione uma meta description à página.")
	case length < minDescriptionLen:
		res.Status = StatusWarning
		res.Score = 50
		res.Message = fmt.Sprintf("meta description muito curta (%d caracteres)", length)
	case length > maxDescriptionLen:
		res.Status = StatusWarning
		res.Score = 60
		res.Message = fmt.Sprintf("meta description muito longa (%d caracteres)", length)
	default:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = "meta description dentro do tamanho recomendado"
	}
	return res
}

func (a *Agent) checkHeadings(doc *collector.PageDocument) *ValidationResult {
	res := &ValidationResult{
		ValidationType: "headings",
		Details:        map[string]any{"h1_count": len(doc.H1s), "h2_count": len(doc.H2s)},
	}

	switch {
	case len(doc.H1s) == 0:
		res.Status = StatusFailed
		res.Score = 0
		res.Message = "página sem <h1>"
		res.Recommendations = append(res.Recommendations, "Adicione exatamente um <h1> à página.")
	case len(doc.H1s) > 1:
		res.Status = StatusWarning
		res.Score = 50
		res.Message = fmt.Sprintf("página com %d tags <h1>", len(doc.H1s))
		res.Recommendations = append(res.Recommendations, "Use apenas um <h1> por página.")
	default:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = "estrutura de cabeçalhos adequada"
	}
	return res
}

func (a *Agent) checkImageAlt(doc *collector.PageDocument) *ValidationResult {
	res := &ValidationResult{
		ValidationType: "image_alt",
		Details:        map[string]any{"images": doc.Images, "missing_alt": doc.ImagesNoAlt},
	}

	switch {
	case doc.Images == 0:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = "página sem imagens"
	case doc.ImagesNoAlt == 0:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = "todas as imagens têm texto alternativo"
	default:
		ratio := float64(doc.Images-doc.ImagesNoAlt) / float64(doc.Images)
		res.Score = ratio * 100
		res.Message = fmt.Sprintf("%d de %d imagens sem texto alternativo", doc.ImagesNoAlt, doc.Images)
		res.Status = StatusWarning
		if ratio < 0.5 {
			res.Status = StatusFailed
		}
		res.Recommendations = append(res.Recommendations, "Adicione atributos alt descritivos às imagens.")
	}
	return res
}

func (a *Agent) checkHTTPS(doc *collector.PageDocument) *ValidationResult {
	if doc.HTTPS {
		return NewValidationResult("https", StatusPassed, 100, "página servida via HTTPS")
	}
	res := NewValidationResult("https", StatusFailed, 0, "página não usa HTTPS")
	res.Recommendations = append(res.Recommendations, "Sirva a página via HTTPS com redirecionamento do HTTP.")
	return res
}

func (a *Agent) checkContentLength(doc *collector.PageDocument) *ValidationResult {
	res := &ValidationResult{
		ValidationType: "content_length",
		Details:        map[string]any{"word_count": doc.WordCount},
	}

	switch {
	case doc.WordCount == 0:
		res.Status = StatusFailed
		res.Score = 0
		res.Message = "página sem conteúdo textual"
	case doc.WordCount < minWordCount:
		res.Status = StatusWarning
		res.Score = float64(doc.WordCount) / float64(minWordCount) * 100
		res.Message = fmt.Sprintf("conteúdo curto (%d palavras)", doc.WordCount)
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Considere expandir o conteúdo para ao menos %d palavras.", minWordCount))
	default:
		res.Status = StatusPassed
		res.Score = 100
		res.Message = fmt.Sprintf("conteúdo com %d palavras", doc.WordCount)
	}
	return res
}

func (a *Agent) checkLinks(doc *collector.PageDocument) *ValidationResult {
	res := &ValidationResult{
		ValidationType: "links",
		Details:        map[string]any{"internal": doc.InternalLinks, "external": doc.ExternalLinks},
	}

	if doc.InternalLinks == 0 {
		res.Status = StatusWarning
		res.Score = 40
		res.Message = "página sem links internos"
		res.Recommendations = append(res.Recommendations, "Adicione links internos para melhorar a navegação e o rastreamento.")
		return res
	}
	res.Status = StatusPassed
	res.Score = 100
	res.Message = fmt.Sprintf("%d links internos, %d externos", doc.InternalLinks, doc.ExternalLinks)
	return res
}

// checkIndexability inspects canonical and robots directives.
func (a *Agent) checkIndexability(doc *collector.PageDocument) *ValidationResult {
	res := &ValidationResult{
		ValidationType: "indexability",
		Details:        map[string]any{"canonical": doc.Canonical, "robots": doc.RobotsMeta},
	}

	if containsDirective(doc.RobotsMeta, "noindex") {
		res.Status = StatusFailed
		res.Score = 0
		res.Message = "página marcada com noindex"
		res.Recommendations = append(res.Recommendations, "Remova a diretiva noindex caso a página deva ser indexada.")
		return res
	}
	if doc.Canonical == "" {
		res.Status = StatusWarning
		res.Score = 70
		res.Message = "página sem link canônico"
		res.Recommendations = append(res.Recommendations, "Defina um link canônico para evitar conteúdo duplicado.")
		return res
	}
	res.Status = StatusPassed
	res.Score = 100
	res.Message = "página indexável com canônico definido"
	return res
}

func containsDirective(robots, directive string) bool {
	for _, part := range strings.FieldsFunc(strings.ToLower(robots), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if part == directive {
			return true
		}
	}
	return false
}
