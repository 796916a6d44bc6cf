package httptransport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

type StatusListHandlerSuite struct {
	routerSuite
}

func TestStatusListHandlerSuite(t *testing.T) {
	suite.Run(t, new(StatusListHandlerSuite))
}

func (s *StatusListHandlerSuite) TestServesSignedList() {
	listID := id.NewStatusListID()
	signed := []byte(`{"type":["VerifiableCredential","StatusList2021Credential"]}`)
	list := &models.StatusList{ID: listID, Version: 7, Credential: signed}
	path := "/v1/status-lists/" + listID.String()

	s.Run("full body with version ETag", func() {
		s.lists.EXPECT().GetStatusList(gomock.Any(), listID).Return(list, nil)

		w := s.do(http.MethodGet, path, nil)

		s.Equal(http.StatusOK, w.Code)
		s.Equal(`"7"`, w.Header().Get("ETag"))
		s.Equal(signed, w.Body.Bytes())
	})

	s.Run("matching If-None-Match", func() {
		s.lists.EXPECT().GetStatusList(gomock.Any(), listID).Return(list, nil)

		w := s.do(http.MethodGet, path, nil, "If-None-Match", `"7"`)

		s.Equal(http.StatusNotModified, w.Code)
		s.Empty(w.Body.Bytes())
	})

	s.Run("stale If-None-Match", func() {
		s.lists.EXPECT().GetStatusList(gomock.Any(), listID).Return(list, nil)

		w := s.do(http.MethodGet, path, nil, "If-None-Match", `"6"`)

		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *StatusListHandlerSuite) TestErrors() {
	s.Run("malformed id", func() {
		w := s.do(http.MethodGet, "/v1/status-lists/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown list", func() {
		s.lists.EXPECT().GetStatusList(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "status list not found"))

		w := s.do(http.MethodGet, "/v1/status-lists/"+id.NewStatusListID().String(), nil)
		s.Equal(http.StatusNotFound, w.Code)
	})
}
