//
// main.go
//
// Copyright (c) 2019-2023 Markku Rossi
//
// All rights reserved.
//

// Command apsi-sender runs the APSI sender: it builds a SenderDB from a
// CSV database (a serialized SenderDB file is not accepted), encodes and
// strips it, then serves PARMS/OPRF/QUERY requests over TCP (spec.md §6
// CLI surface).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/markkurossi/apsi/csvutil"
	"github.com/markkurossi/apsi/network"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/query"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/senderdb"
	"github.com/markkurossi/apsi/timing"
	"github.com/markkurossi/apsi/workerpool"
)

func main() {
	dbPath := flag.String("db", "", "path to the sender database CSV")
	paramsPath := flag.String("params", "", "path to the PSIParams JSON file")
	port := flag.Int("port", 8080, "listen port")
	threads := flag.Int("threads", 0, "worker pool size (0 = runtime.NumCPU())")
	labelBytes := flag.Int("label-bytes", 0, "label length in bytes (0 = unlabeled PSI)")
	nonceBytes := flag.Int("nonce-bytes", 16, "label nonce length in bytes")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	log.SetFlags(0)

	if len(*dbPath) == 0 || len(*paramsPath) == 0 {
		fmt.Fprintln(os.Stderr, "apsi-sender: -db and -params are required")
		os.Exit(1)
	}

	params, err := loadParams(*paramsPath)
	if err != nil {
		log.Printf("apsi-sender: %v", err)
		os.Exit(3)
	}

	t := timing.New()

	pool := workerpool.New(*threads)
	hasLabels := *labelBytes > 0
	db, err := senderdb.New(params, hasLabels, *labelBytes, *nonceBytes, pool)
	if err != nil {
		log.Printf("apsi-sender: build database: %v", err)
		os.Exit(3)
	}

	if err := loadDatabase(db, *dbPath, hasLabels); err != nil {
		log.Printf("apsi-sender: load database: %v", err)
		os.Exit(1)
	}
	t.Sample("load")

	sealParams, err := params.SealParams()
	if err != nil {
		log.Printf("apsi-sender: %v", err)
		os.Exit(3)
	}
	encoder := seal.NewEncoder(sealParams)

	if err := db.Encode(encoder); err != nil {
		log.Printf("apsi-sender: encode database: %v", err)
		os.Exit(3)
	}
	t.Sample("encode")

	engine := query.NewEngine(db, pool, encoder)
	session, err := network.NewSenderSession(params, db, engine, sealParams)
	if err != nil {
		log.Printf("apsi-sender: %v", err)
		os.Exit(3)
	}
	// The session holds its own copy of the OPRF key bytes, so the DB's
	// copy can be discarded now.
	db.Strip()

	if *verbose {
		t.Report(os.Stdout)
	}

	addr := fmt.Sprintf(":%d", *port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("apsi-sender: listen %s: %v", addr, err)
		os.Exit(2)
	}
	log.Printf("apsi-sender: listening on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("apsi-sender: accept: %v", err)
			continue
		}
		go serveConn(session, conn, *verbose)
	}
}

func serveConn(session *network.SenderSession, conn net.Conn, verbose bool) {
	defer conn.Close()
	ch := network.NewStreamChannel(conn)
	for {
		if err := session.Serve(ch); err != nil {
			if verbose {
				log.Printf("apsi-sender: connection %s closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func loadParams(path string) (psiparams.PSIParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return psiparams.PSIParams{}, fmt.Errorf("read params file: %w", err)
	}
	var params psiparams.PSIParams
	if err := json.Unmarshal(data, &params); err != nil {
		return psiparams.PSIParams{}, fmt.Errorf("parse params file: %w", err)
	}
	if err := params.Validate(); err != nil {
		return psiparams.PSIParams{}, err
	}
	return params, nil
}

func loadDatabase(db *senderdb.SenderDB, path string, hasLabels bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open database csv: %w", err)
	}
	defer f.Close()

	records, err := csvutil.Read(f)
	if err != nil {
		return fmt.Errorf("read database csv: %w", err)
	}

	for _, rec := range records {
		if hasLabels && rec.Label == nil {
			log.Printf("apsi-sender: skipping unlabeled record in labeled database")
			continue
		}
		raw := rec.Item.Bytes()
		if err := db.InsertOrAssign(raw[:], rec.Label); err != nil {
			return err
		}
	}
	return nil
}
