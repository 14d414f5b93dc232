package server

import (
	"encoding/json"
	"net/http"

	"trafficwatch/internal/domain"
	"trafficwatch/internal/middleware"
)

type geoTestRequest struct {
	IP string `json:"ip"`
}

type geoHeaders struct {
	ForwardedFor *string `json:"x-forwarded-for"`
	RemoteAddr   string  `json:"remote_addr"`
}

type geoTestResponse struct {
	IPAddress   string             `json:"ip_address"`
	Method      string             `json:"method"`
	Path        string             `json:"path"`
	UserAgent   *string            `json:"user_agent"`
	GeoHeaders  geoHeaders         `json:"geo_headers"`
	Geolocation domain.Geolocation `json:"geolocation"`
}

// testGeo echoes how the request is seen. A POST body {"ip": ...} replaces
// the forwarded header for the echo only.
func testGeo(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := r
		if r.Method == http.MethodPost {
			var body geoTestRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, "Invalid JSON", http.StatusBadRequest)
				return
			}
			view = r.Clone(r.Context())
			view.Header.Set("X-Forwarded-For", body.IP)
		}

		address := middleware.ClientAddress(view, deps.IgnoreForwardedHeader)

		resp := geoTestResponse{
			IPAddress: address,
			Method:    r.Method,
			Path:      r.URL.Path,
			GeoHeaders: geoHeaders{
				ForwardedFor: headerValue(view, "X-Forwarded-For"),
				RemoteAddr:   r.RemoteAddr,
			},
		}
		resp.UserAgent = headerValue(r, "User-Agent")
		if deps.Resolver != nil {
			resp.Geolocation = deps.Resolver.Resolve(r.Context(), address)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func headerValue(r *http.Request, name string) *string {
	values, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}
