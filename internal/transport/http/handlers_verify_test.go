package httptransport

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"openbadges/internal/verification"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

type VerifyHandlerSuite struct {
	routerSuite
}

func TestVerifyHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerifyHandlerSuite))
}

func (s *VerifyHandlerSuite) decodeResult(body []byte) verification.Result {
	var res verification.Result
	s.Require().NoError(json.Unmarshal(body, &res))
	return res
}

func (s *VerifyHandlerSuite) TestVerifyJSON() {
	doc := []byte(`{"id":"urn:uuid:1","type":["VerifiableCredential"]}`)
	s.verifier.EXPECT().Verify(gomock.Any(), doc).Return(&verification.Result{
		Valid:      false,
		Generation: "legacy",
		Checks:     verification.Checks{Structure: false},
		Errors:     []string{"missing issuer"},
		Warnings:   []string{},
	})

	w := s.do(http.MethodPost, "/v1/verify", doc, "Content-Type", "application/json")

	s.Equal(http.StatusOK, w.Code)
	res := s.decodeResult(w.Body.Bytes())
	s.False(res.Valid)
	s.Equal([]string{"missing issuer"}, res.Errors)
	s.NotContains(w.Body.String(), `"signature"`)
}

func (s *VerifyHandlerSuite) TestVerifyImage() {
	img := append(append([]byte{}, pngHeader...), 0, 0, 0, 0)

	s.Run("baked image is verified", func() {
		s.verifier.EXPECT().VerifyImage(gomock.Any(), img).Return(&verification.Result{Valid: true, Generation: "proven"}, nil)

		w := s.do(http.MethodPost, "/v1/verify", img, "Content-Type", "image/png")

		s.Equal(http.StatusOK, w.Code)
		s.True(s.decodeResult(w.Body.Bytes()).Valid)
	})

	s.Run("image without payload is 404", func() {
		s.verifier.EXPECT().VerifyImage(gomock.Any(), img).Return(nil, dErrors.New(dErrors.CodeNotFound, "image carries no badge"))

		w := s.do(http.MethodPost, "/v1/verify", img)

		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("svg is dispatched as an image", func() {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
		s.verifier.EXPECT().VerifyImage(gomock.Any(), svg).Return(&verification.Result{Generation: "legacy"}, nil)

		w := s.do(http.MethodPost, "/v1/verify", svg)

		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *VerifyHandlerSuite) TestVerifyRejectsUnknownBodies() {
	s.Run("neither JSON nor image", func() {
		w := s.do(http.MethodPost, "/v1/verify", []byte("GIF89a...."))
		s.Equal(http.StatusUnsupportedMediaType, w.Code)
	})

	s.Run("empty body", func() {
		w := s.do(http.MethodPost, "/v1/verify", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *VerifyHandlerSuite) TestExtract() {
	img := append(append([]byte{}, pngHeader...), 1, 2, 3)

	s.Run("returns the embedded document untouched", func() {
		payload := []byte(`{"id":"urn:uuid:1","b":1,"a":2}`)
		s.extractor.EXPECT().Extract(img).Return(payload, nil)

		w := s.do(http.MethodPost, "/v1/badges/extract", img)

		s.Equal(http.StatusOK, w.Code)
		s.Equal("application/json", w.Header().Get("Content-Type"))
		s.Equal(payload, w.Body.Bytes())
	})

	s.Run("unsupported image", func() {
		s.extractor.EXPECT().Extract([]byte("BM....")).Return(nil, dErrors.New(dErrors.CodeUnsupportedMedia, "image must be PNG or SVG"))

		w := s.do(http.MethodPost, "/v1/badges/extract", []byte("BM...."))

		s.Equal(http.StatusUnsupportedMediaType, w.Code)
	})
}

func (s *VerifyHandlerSuite) TestVerifyAssertion() {
	s.Run("escaped URN identifiers are decoded", func() {
		s.verifier.EXPECT().
			VerifyAssertion(gomock.Any(), id.CredentialID("urn:uuid:7d0e2f5c-3c8e-4a43-9b1f-0f3c1d2e4a5b")).
			Return(&verification.Result{Valid: true, Generation: "legacy"}, nil)

		w := s.do(http.MethodGet, "/v1/assertions/urn%3Auuid%3A7d0e2f5c-3c8e-4a43-9b1f-0f3c1d2e4a5b/verify", nil)

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("unknown assertion", func() {
		s.verifier.EXPECT().VerifyAssertion(gomock.Any(), id.CredentialID("missing")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "assertion not found"))

		w := s.do(http.MethodGet, "/v1/assertions/missing/verify", nil)

		s.Equal(http.StatusNotFound, w.Code)
	})
}
