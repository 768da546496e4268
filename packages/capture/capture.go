package capture

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/jsonpath"
	"go.uber.org/zap"
)

var (
	ErrHeaderRequired   = errors.New("header name is required")
	ErrJSONPathRequired = errors.New("JSONPath expression is required")
)

type Extractor struct {
	response *http.Response
	doc      []byte
	docOK    bool
	logger   *zap.Logger
}

func NewExtractor(resp *http.Response, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		response: resp,
		logger:   logger,
	}
	e.doc, e.docOK = resp.JSON()
	return e
}

// Extract reads one value. ok is false when the value is undefined; err is
// set when the extractor itself is malformed.
func (e *Extractor) Extract(v *model.VariableExtractor) (value any, ok bool, err error) {
	switch v.Source {
	case model.SourceHeader:
		if v.Path == "" {
			return nil, false, ErrHeaderRequired
		}
		h, found := e.response.Header(v.Path)
		if !found {
			return nil, false, nil
		}
		return h, true, nil
	case model.SourceBody:
		if v.Path == "" {
			return e.response.Body, true, nil
		}
		if !e.docOK {
			return nil, false, nil
		}
		value, ok = jsonpath.Dotted(e.doc, v.Path)
		return value, ok, nil
	case model.SourceJSONPath:
		if v.Path == "" {
			return nil, false, ErrJSONPathRequired
		}
		if !e.docOK {
			return nil, false, nil
		}
		return jsonpath.First(e.doc, v.Path)
	default:
		return nil, false, fmt.Errorf("%w: %s", model.ErrUnknownSource, v.Source)
	}
}

// ExtractAll runs every extractor against resp. Malformed entries are logged
// and skipped; undefined values are omitted from the result.
func ExtractAll(extractors []*model.VariableExtractor, resp *http.Response, logger *zap.Logger) map[string]any {
	results := make(map[string]any)
	if resp == nil {
		return results
	}
	e := NewExtractor(resp, logger)

	for _, x := range extractors {
		if x == nil {
			continue
		}
		value, ok, err := e.Extract(x)
		if err != nil {
			e.logger.Warn("failed to extract variable", zap.String("name", x.Name), zap.String("source", string(x.Source)), zap.Error(err))
			continue
		}
		if ok {
			results[x.Name] = value
		}
	}

	return results
}
