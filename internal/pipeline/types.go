package pipeline

import (
	"fmt"
	"strings"
	"time"

	"cinepulse/pkg/contracts/domain"
)

// Domain identifies one of the independent analytics pipelines
type Domain string

const (
	DomainCatalog Domain = "catalog"
	DomainRegion  Domain = "region"
	DomainItem    Domain = "item"
)

// Domains lists every domain in a stable order
var Domains = []Domain{DomainCatalog, DomainRegion, DomainItem}

// ParseDomain validates a domain name
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DomainCatalog, DomainRegion, DomainItem:
		return d, nil
	}
	return "", NewInvalidParameterError("", "", "", fmt.Sprintf("unknown domain %q", s))
}

// PayloadKind returns the payload shape the domain loads
func (d Domain) PayloadKind() domain.PayloadKind {
	if d == DomainItem {
		return domain.PayloadKindText
	}
	return domain.PayloadKindTable
}

// AnalysisOp returns the operation that produces the domain's result
func (d Domain) AnalysisOp() Operation {
	switch d {
	case DomainCatalog:
		return OpAnalyze
	case DomainRegion:
		return OpForecast
	default:
		return OpTokenize
	}
}

// Stage is a position a record passes through
type Stage string

const (
	StageRaw      Stage = "raw"
	StageCleaned  Stage = "cleaned"
	StageResult   Stage = "result"
	StageArtifact Stage = "artifact"
)

// ParseStage validates an exportable stage name
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StageRaw, StageCleaned, StageResult:
		return st, nil
	}
	return "", NewInvalidParameterError("", "", "", fmt.Sprintf("unknown stage %q", s))
}

// Operation is a stage transition requested by a caller
type Operation string

const (
	OpLoad     Operation = "load"
	OpClean    Operation = "clean"
	OpAnalyze  Operation = "analyze"
	OpForecast Operation = "forecast"
	OpTokenize Operation = "tokenize"
	OpRender   Operation = "render"
)

// DefaultCatalogKey is the implicit key of the singleton catalog
const DefaultCatalogKey = "default"

// Default stage limits
const (
	DefaultStageTimeout = 2 * time.Minute
)

// NormalizeKey validates a key for the domain. The catalog has a single
// implicit key; region and item keys are trimmed and must be non-empty.
func NormalizeKey(d Domain, key string) (string, error) {
	key = strings.TrimSpace(key)
	if d == DomainCatalog {
		if key == "" || strings.EqualFold(key, DefaultCatalogKey) {
			return DefaultCatalogKey, nil
		}
		return "", NewInvalidParameterError(d, key, "", "catalog only has the default key")
	}
	if key == "" {
		return "", NewInvalidParameterError(d, key, "", "key must not be empty")
	}
	return key, nil
}

func lockID(d Domain, key string) string {
	return string(d) + "\x00" + key
}
