package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TimurManjosov/flagpage/internal/flagclient"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
	"github.com/TimurManjosov/flagpage/internal/view"
)

// handlePage always answers 200: an unavailable flag renders its default and a
// failed render sends the error text as the page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	_, span := telemetry.Tracer("flagpage/api").Start(r.Context(), "render page")
	defer span.End()

	value := false
	if ec, err := flagclient.NewContext(s.ctxKey, s.ctxKind, s.ctxName); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("invalid evaluation context")
	} else {
		value = s.flags.BoolVariation(ec, s.flagKey, false)
	}
	span.SetAttributes(
		attribute.String("flag.key", s.flagKey),
		attribute.Bool("flag.value", value),
	)

	body := s.views.Render(view.View{
		Name: IndexView,
		Data: map[string]string{"flagvalue": strconv.FormatBool(value)},
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
