package controller

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/view"
	"github.com/gorilla/mux"
)

var (
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errInvalidOffset = &parseError{msg: "invalid offset"}
	errInvalidDir    = &parseError{msg: "invalid dir, must be 'asc' or 'desc'"}
	errMissingID     = &parseError{msg: "missing id"}
	errMissingTerm   = &parseError{msg: "missing search term"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }

// parseFamily reads the {assetType} route variable.
func parseFamily(r *http.Request) (market.Family, error) {
	f, err := market.ParseFamily(mux.Vars(r)["assetType"])
	if err != nil {
		return "", &parseError{msg: err.Error()}
	}
	return f, nil
}

func parseID(r *http.Request) (string, error) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		return "", errMissingID
	}
	return id, nil
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}
	if n > max {
		n = max
	}
	return n, nil
}

// parseListParams reads limit, offset, sort and dir. Unknown sort keys fall
// back to most recent sale. Without dir, most recent sale is served most
// recent first and every other key largest first.
func parseListParams(r *http.Request) (view.ListParams, error) {
	qs := r.URL.Query()
	limit, err := parseLimit(r, view.DefaultListLimit, view.MaxListLimit)
	if err != nil {
		return view.ListParams{}, err
	}

	offset := 0
	if v := qs.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return view.ListParams{}, errInvalidOffset
		}
		offset = n
	}

	sort := market.ParseSortKey(qs.Get("sort"))
	desc := sort != market.SortMostRecentSale
	switch strings.ToLower(qs.Get("dir")) {
	case "":
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return view.ListParams{}, errInvalidDir
	}

	return view.ListParams{Limit: limit, Offset: offset, Sort: sort, Desc: desc}, nil
}

func parseBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
