package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

type highlightRequest struct {
	Locator string `json:"locator" validate:"required,locator"`
	Text    string `json:"text" validate:"required,max=4096"`
	Note    string `json:"note" validate:"max=4096"`
	Color   string `json:"color" validate:"omitempty,oneof=yellow green blue pink"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := highlightRequest{
		Locator: "epubcfi(/6/4!/4/2/1:0)",
		Text:    "You shall not pass",
		Color:   "yellow",
	}

	err := v.Validate(req)
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name       string
		req        highlightRequest
		wantErrMsg string
	}{
		{
			name: "missing locator",
			req: highlightRequest{
				Text: "some text",
			},
			wantErrMsg: "locator",
		},
		{
			name: "blank locator",
			req: highlightRequest{
				Locator: "   ",
				Text:    "some text",
			},
			wantErrMsg: "locator",
		},
		{
			name: "locator with control characters",
			req: highlightRequest{
				Locator: "epubcfi(/6/4!/4/2/1:0)\x00",
				Text:    "some text",
			},
			wantErrMsg: "locator",
		},
		{
			name: "missing text",
			req: highlightRequest{
				Locator: "epubcfi(/6/4!/4/2/1:0)",
			},
			wantErrMsg: "text",
		},
		{
			name: "text too long",
			req: highlightRequest{
				Locator: "epubcfi(/6/4!/4/2/1:0)",
				Text:    string(make([]byte, 4097)),
			},
			wantErrMsg: "text",
		},
		{
			name: "unknown color",
			req: highlightRequest{
				Locator: "epubcfi(/6/4!/4/2/1:0)",
				Text:    "some text",
				Color:   "chartreuse",
			},
			wantErrMsg: "color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			assert.Error(t, err)

			var appErr *apperrors.Error
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
				details, ok := appErr.Details.(map[string]string)
				if assert.True(t, ok) {
					assert.Contains(t, details, tt.wantErrMsg)
				}
			}
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := highlightRequest{Text: "missing locator"}

	err := v.Validate(req)
	assert.Error(t, err)

	var appErr *apperrors.Error
	if assert.True(t, errors.As(err, &appErr)) {
		details, ok := appErr.Details.(map[string]string)
		if assert.True(t, ok) {
			// JSON tag name "locator", not struct field name "Locator".
			assert.Contains(t, details, "locator")
			assert.NotContains(t, details, "Locator")
		}
	}
}
