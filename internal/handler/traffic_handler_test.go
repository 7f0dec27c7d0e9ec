package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferrovia/internal/domain"
)

func TestTrafficList(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		ids    []int64
	}{
		{"all notices newest first", "/v1/traffic", []int64{6, 5, 7}},
		{"one region", "/v1/traffic?region=" + url.QueryEscape("Bourgogne-Franche-Comté"), []int64{6, 5}},
		{"unknown region", "/v1/traffic?region=Occitanie", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body TrafficResponse
			decode(t, rec.Body.Bytes(), &body)
			assert.Equal(t, len(tt.ids), body.Count)

			ids := []int64{}
			for _, info := range body.Items {
				ids = append(ids, info.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestTrafficGet(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/traffic/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info domain.TrafficInfo
	decode(t, rec.Body.Bytes(), &info)
	assert.Equal(t, "Ligne Strasbourg - Bâle", info.Title)
	assert.Equal(t, "Grand Est", info.Region)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/traffic/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/traffic/0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/traffic/-3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/traffic/abc", nil).Code)
}

type brokenTraffic struct{}

func (brokenTraffic) AllTrafficInfo(context.Context) ([]domain.TrafficInfo, error) {
	return nil, errors.New("no such table: infos_trafics")
}

func (brokenTraffic) TrafficInfoByRegion(context.Context, string) ([]domain.TrafficInfo, error) {
	return nil, errors.New("no such table: infos_trafics")
}

func (brokenTraffic) TrafficInfo(context.Context, int64) (*domain.TrafficInfo, error) {
	return nil, errors.New("no such table: infos_trafics")
}

func TestTrafficStoreFailure(t *testing.T) {
	h := NewTrafficHandler(brokenTraffic{}, testLogger())
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/traffic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
