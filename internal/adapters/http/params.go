package httpadapter

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// Parameters are bound with the same styles openapi.yaml declares for them.

func bindReferenceID(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind id", err)
	}
	return id, nil
}

type previewParams struct {
	Format *string
}

func (p previewParams) html() bool {
	return p.Format != nil && *p.Format == "html"
}

func bindPreviewParams(r *http.Request) (previewParams, error) {
	var params previewParams
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &params.Format); err != nil {
		return params, domain.WrapError(domain.ErrInvalidInput, "bind format", err)
	}
	return params, nil
}

type downloadParams struct {
	Redirect *bool
}

func (p downloadParams) redirect() bool {
	return p.Redirect != nil && *p.Redirect
}

func bindDownloadParams(r *http.Request) (downloadParams, error) {
	var params downloadParams
	if err := runtime.BindQueryParameter("form", true, false, "redirect", r.URL.Query(), &params.Redirect); err != nil {
		return params, domain.WrapError(domain.ErrInvalidInput, "bind redirect", err)
	}
	return params, nil
}
