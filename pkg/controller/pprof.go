package controller

import (
	"net/http"
	"net/http/pprof"
)

// PprofPath is the prefix the profiling handlers are registered under.
const PprofPath = "/debug/pprof/"

// PprofMux returns an http.ServeMux with the net/http/pprof handlers registered
// under PprofPath. Mount it at PprofPath without stripping the prefix, since
// pprof.Index resolves named profiles from the full path.
func PprofMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(PprofPath, pprof.Index)
	mux.HandleFunc(PprofPath+"cmdline", pprof.Cmdline)
	mux.HandleFunc(PprofPath+"profile", pprof.Profile)
	mux.HandleFunc(PprofPath+"symbol", pprof.Symbol)
	mux.HandleFunc(PprofPath+"trace", pprof.Trace)

	return mux
}
