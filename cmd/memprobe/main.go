// memprobe drives a churn workload through the managed-reference facade and
// serves live heap statistics. Build with -tags usegc to probe the tracing
// backend; the default build probes the reference-counting backend.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/AlexMouton/purescript-native/managed"
)

var port = flag.String("port", "8080", "port to listen")
var workers = flag.Int("workers", 4, "allocation workers")
var churn = flag.Int("churn", 10000, "objects allocated per worker batch")
var keep = flag.Int("keep", 256, "pinned survivors per worker")

type payload struct {
	ID     int64
	Weight float64
	Blob   [32]byte
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	flag.Parse()
	managed.Initialize()
	log.Printf("backend %s", managed.Backend())

	for i := 0; i < *workers; i++ {
		go worker(int64(i))
	}

	err := fasthttp.ListenAndServe(":"+*port, handler)
	if err != nil {
		log.Fatal(err)
	}
}

func worker(seed int64) {
	rnd := rand.New(rand.NewSource(seed))
	pinned := make([]managed.Ref[payload], 0, *keep)
	for {
		for i := 0; i < *churn; i++ {
			r := managed.Make(payload{ID: rnd.Int63(), Weight: rnd.Float64()})
			if len(pinned) < *keep {
				managed.Pin(r)
				r.Release() // the pin is now the only holder
				pinned = append(pinned, r)
				continue
			}
			r.Release()
		}
		if len(pinned) == *keep {
			j := rnd.Intn(len(pinned))
			managed.Unpin(pinned[j])
			pinned[j] = pinned[len(pinned)-1]
			pinned = pinned[:len(pinned)-1]
		}
		managed.Collect()
		time.Sleep(10 * time.Millisecond)
	}
}

var json = jsoniter.ConfigFastest

func handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/stats":
		body, err := json.Marshal(managed.Stats())
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	case "/collect":
		managed.Collect()
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}
