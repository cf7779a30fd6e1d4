// Package request implements RequestValidator: the orchestrator that
// matches an incoming request to a spec operation, extracts path
// parameters from a template, then dispatches RuntimeValidator across the
// request's path/query/header/cookie parameters and body.
package request

import (
	"context"
	"strings"

	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/processor"
	"github.com/speclab/schemacore/validator"
)

// Mode controls how unknown parameters/properties are treated, per
// spec.md §4.9.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// Location is where a declared parameter is carried.
type Location string

const (
	LocationPath   Location = "path"
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationCookie Location = "cookie"
)

// ParameterSpec describes one declared operation parameter.
type ParameterSpec struct {
	Name     string
	In       Location
	Required bool
	Schema   *processor.ProcessedSchema
}

// MediaTypeSpec is one entry of a requestBody's content map.
type MediaTypeSpec struct {
	ContentType string
	Schema      *processor.ProcessedSchema
}

// Operation is the minimal shape RequestValidator needs from an OpenAPI
// operation: its declared parameters and request body media types.
type Operation struct {
	Parameters  []ParameterSpec
	RequestBody []MediaTypeSpec
	Mode        Mode
}

// View is the minimal request abstraction the core consumes, matching
// spec.md §4.9's requestView shape.
type View struct {
	Method      string
	URLPath     string
	Query       map[string][]string
	Headers     map[string][]string
	Cookies     map[string][]string
	Body        document.Value
	ContentType string
}

// Result is the accumulated outcome of validating a request.
type Result struct {
	PathParams map[string]string
	Errors     []validator.ValidationError
	Warnings   []validator.ValidationError
}

// MatchPath extracts named path parameters by matching urlPath against
// template (e.g. "/a/{x}/b/{y}"). It returns false if the segment counts
// or literal segments don't line up.
func MatchPath(template, urlPath string) (map[string]string, bool) {
	templateSegs := splitPath(template)
	pathSegs := splitPath(urlPath)
	if len(templateSegs) != len(pathSegs) {
		return nil, false
	}
	params := make(map[string]string, len(templateSegs))
	for i, seg := range templateSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			params[name] = pathSegs[i]
			continue
		}
		if seg != pathSegs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ValidateRequest implements spec.md §4.9's validateRequest: it extracts
// path parameters, validates every declared parameter against its schema,
// selects a request body media type, and validates the decoded body.
// Every failure is collected; ValidateRequest never rejects the request —
// the caller (an HTTP server) decides the response.
func ValidateRequest(proc *processor.Processor, req View, op Operation, pathTemplate string) Result {
	return ValidateRequestCtx(context.Background(), proc, req, op, pathTemplate)
}

// ValidateRequestCtx is ValidateRequest with cooperative cancellation: ctx is
// checked once per declared parameter and again before body validation, the
// natural yield points of this orchestrator's outer loop per spec.md §5. A
// cancellation mid-run returns the partial Result gathered so far plus a
// cancelled-kind error appended to Errors.
func ValidateRequestCtx(ctx context.Context, proc *processor.Processor, req View, op Operation, pathTemplate string) Result {
	result := Result{}

	pathParams, ok := MatchPath(pathTemplate, req.URLPath)
	if !ok {
		result.Errors = append(result.Errors, validator.ValidationError{
			DataPointer: "", SchemaPointer: "", Keyword: "path-template",
			Message: "request path does not match the operation's path template",
		})
		return result
	}
	result.PathParams = pathParams

	declared := map[string]bool{}
	for _, p := range op.Parameters {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, validator.ValidationError{
				Keyword: "cancelled", Message: "request validation cancelled",
			})
			return result
		}
		declared[parameterKey(p.In, p.Name)] = true
		value, present := lookupParameter(p, req, pathParams)
		if !present {
			if p.Required {
				result.Errors = append(result.Errors, validator.ValidationError{
					DataPointer: "/" + string(p.In) + "/" + p.Name,
					Keyword:     "required",
					Message:     "missing required " + string(p.In) + " parameter " + p.Name,
				})
			}
			continue
		}
		if p.Schema == nil {
			continue
		}
		errs, err := validator.ValidateCtx(ctx, p.Schema, proc, value)
		if err != nil {
			result.Errors = append(result.Errors, validator.ValidationError{
				DataPointer: "/" + string(p.In) + "/" + p.Name, Keyword: "invariant",
				Message: err.Error(),
			})
			continue
		}
		result.Errors = append(result.Errors, rebase(errs, "/"+string(p.In)+"/"+p.Name)...)
	}

	unknown := unknownQueryParams(req, declared)
	for _, name := range unknown {
		entry := validator.ValidationError{
			DataPointer: "/query/" + name, Keyword: "unknown-parameter",
			Message: "unrecognized query parameter " + name,
		}
		if op.Mode == ModeStrict {
			result.Errors = append(result.Errors, entry)
		} else {
			result.Warnings = append(result.Warnings, entry)
		}
	}

	if req.Body != nil && ctx.Err() != nil {
		result.Errors = append(result.Errors, validator.ValidationError{
			DataPointer: "/body", Keyword: "cancelled", Message: "request validation cancelled",
		})
		return result
	}

	if req.Body != nil {
		mt, ok := selectMediaType(op.RequestBody, req.ContentType)
		if !ok {
			result.Errors = append(result.Errors, validator.ValidationError{
				DataPointer: "/body", Keyword: "unsupported-media-type",
				Message: "no requestBody content entry matches content-type " + req.ContentType,
			})
		} else if mt.Schema != nil {
			errs, err := validator.ValidateCtx(ctx, mt.Schema, proc, req.Body)
			if err != nil {
				result.Errors = append(result.Errors, validator.ValidationError{
					DataPointer: "/body", Keyword: "invariant", Message: err.Error(),
				})
			} else {
				result.Errors = append(result.Errors, rebase(errs, "/body")...)
			}
		}
	}

	return result
}

func parameterKey(in Location, name string) string { return string(in) + ":" + name }

func lookupParameter(p ParameterSpec, req View, pathParams map[string]string) (document.Value, bool) {
	switch p.In {
	case LocationPath:
		v, ok := pathParams[p.Name]
		return v, ok
	case LocationQuery:
		vs, ok := req.Query[p.Name]
		if !ok || len(vs) == 0 {
			return nil, false
		}
		return vs[0], true
	case LocationHeader:
		vs, ok := req.Headers[canonicalHeader(p.Name)]
		if !ok || len(vs) == 0 {
			return nil, false
		}
		return vs[0], true
	case LocationCookie:
		vs, ok := req.Cookies[p.Name]
		if !ok || len(vs) == 0 {
			return nil, false
		}
		return vs[0], true
	default:
		return nil, false
	}
}

func canonicalHeader(name string) string {
	return strings.ToLower(name)
}

// unknownQueryParams returns every query key not named by a declared
// parameter. Header/cookie unknowns are not flagged: servers routinely
// carry headers/cookies the operation never declares (auth, tracing,
// load-balancer cookies), so only query is in scope per spec.md §4.9.
func unknownQueryParams(req View, declared map[string]bool) []string {
	var out []string
	for key := range req.Query {
		if !declared[parameterKey(LocationQuery, key)] {
			out = append(out, key)
		}
	}
	return out
}

// selectMediaType picks a requestBody content entry by content-type: exact
// match first, then "type/*", then "*/*", per spec.md §4.9 step 3.
func selectMediaType(candidates []MediaTypeSpec, contentType string) (MediaTypeSpec, bool) {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, c := range candidates {
		if c.ContentType == base {
			return c, true
		}
	}
	typePart := strings.SplitN(base, "/", 2)[0]
	for _, c := range candidates {
		if c.ContentType == typePart+"/*" {
			return c, true
		}
	}
	for _, c := range candidates {
		if c.ContentType == "*/*" {
			return c, true
		}
	}
	return MediaTypeSpec{}, false
}

// rebase prefixes every error's DataPointer with prefix, so a parameter- or
// body-scoped validation error reports its location relative to the whole
// request rather than relative to just the parameter's own value.
func rebase(errs []validator.ValidationError, prefix string) []validator.ValidationError {
	out := make([]validator.ValidationError, len(errs))
	for i, e := range errs {
		e.DataPointer = prefix + e.DataPointer
		out[i] = e
	}
	return out
}
