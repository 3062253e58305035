package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/afiqaffendi/rbs/internal/lifecycle"
)

// handlePaymentCallback applies the gateway's verdict. The gateway posts either JSON or
// form fields (status, status_id, billcode, order_id); query parameters are accepted too.
func (s *HTTPServer) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var ev lifecycle.PaymentEvent

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if !decodeJSON(w, r, &ev) {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		var err error
		if ev, err = paymentEventFromForm(r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	b, err := s.services.Bookings.HandlePaymentEvent(r.Context(), ev)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func paymentEventFromForm(r *http.Request) (lifecycle.PaymentEvent, error) {
	ev := lifecycle.PaymentEvent{
		Status:    strings.TrimSpace(r.Form.Get("status")),
		Reference: strings.TrimSpace(r.Form.Get("billcode")),
	}
	if ev.Reference == "" {
		ev.Reference = strings.TrimSpace(r.Form.Get("reference"))
	}

	if raw := strings.TrimSpace(r.Form.Get("status_id")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ev, errInvalidField("status_id")
		}
		ev.StatusID = n
	}

	raw := strings.TrimSpace(r.Form.Get("order_id"))
	if raw == "" {
		raw = strings.TrimSpace(r.Form.Get("booking_id"))
	}
	if raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ev, errInvalidField("order_id")
		}
		ev.BookingID = n
	}
	return ev, nil
}

type errInvalidField string

func (e errInvalidField) Error() string {
	return "invalid " + string(e)
}
