//
// main.go
//
// Copyright (c) 2019-2023 Markku Rossi
//
// All rights reserved.
//

// Command apsi-receiver runs the APSI receiver: it fetches the sender's
// PSIParams, runs the OPRF exchange, builds and sends an encrypted
// query, and decodes the streamed ResultPackages into MatchRecords
// (spec.md §6 CLI surface).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/markkurossi/apsi/csvutil"
	"github.com/markkurossi/apsi/cuckoo"
	"github.com/markkurossi/apsi/decode"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
	"github.com/markkurossi/apsi/network"
	"github.com/markkurossi/apsi/oprf"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/timing"
)

func main() {
	address := flag.String("address", "127.0.0.1", "sender address")
	port := flag.Int("port", 8080, "sender port")
	queryPath := flag.String("query", "", "path to the query CSV")
	outPath := flag.String("out", "", "path to write match results (default stdout)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	log.SetFlags(0)

	if len(*queryPath) == 0 {
		fmt.Fprintln(os.Stderr, "apsi-receiver: -query is required")
		os.Exit(1)
	}

	t := timing.New()

	ch, err := network.Dial(fmt.Sprintf("%s:%d", *address, *port))
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(2)
	}
	defer ch.Close()

	params, err := fetchParams(ch)
	if err != nil {
		log.Printf("apsi-receiver: fetch parms: %v", err)
		os.Exit(2)
	}
	t.Sample("parms")

	f, err := os.Open(*queryPath)
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(1)
	}
	records, err := csvutil.Read(f)
	f.Close()
	if err != nil {
		log.Printf("apsi-receiver: read query csv: %v", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		log.Printf("apsi-receiver: query csv has no usable records")
		os.Exit(1)
	}

	rawItems := make([][]byte, len(records))
	for i, rec := range records {
		raw := rec.Item.Bytes()
		rawItems[i] = raw[:]
	}

	hashes, err := runOPRF(ch, rawItems, *verbose)
	if err != nil {
		log.Printf("apsi-receiver: oprf exchange: %v", err)
		os.Exit(2)
	}
	t.Sample("oprf")

	mod, err := params.FieldModulus()
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}
	codec, err := field.NewCodec(mod, params.Item.FeltsPerItem)
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}

	table, err := cuckoo.NewTable(params.Table.TableSize, params.Table.HashFuncCount)
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}

	placements := make(map[uint64]item.Item, len(records))
	labelKeys := make(map[uint64]item.LabelKey, len(records))
	coords := make(map[uint64][]field.Elt, len(records))

	for i, h := range hashes {
		if err := table.Insert(h.Hashed); err != nil {
			log.Printf("apsi-receiver: item %d: %v", i, err)
			os.Exit(3)
		}
	}

	// Record placements only after every insert: a later insert can
	// displace an earlier item to another of its candidate cells.
	for i, h := range hashes {
		loc, ok := table.LocationOf(h.Hashed)
		if !ok {
			continue
		}
		placements[loc] = records[i].Item
		labelKeys[loc] = h.LabelKey

		hashedBytes := h.Hashed.Bytes()
		bits, err := item.NewBitstring(hashedBytes[:], 128)
		if err != nil {
			log.Printf("apsi-receiver: %v", err)
			os.Exit(3)
		}
		felts, err := codec.ToField(bits)
		if err != nil {
			log.Printf("apsi-receiver: %v", err)
			os.Exit(3)
		}
		coords[loc] = felts
	}

	sealParams, err := params.SealParams()
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}
	kp := seal.GenKeyPair(sealParams)
	rlk := seal.GenRelinKey(sealParams, kp.Secret)
	encryptor := seal.NewEncryptor(sealParams, kp.Public)
	decryptor := seal.NewDecryptor(sealParams, kp.Secret)
	encoder := seal.NewEncoder(sealParams)

	itemsPerBundle := params.ItemsPerBundle()
	bundleCount := params.BundleIndexCount()

	powersBytes := make(map[int][][]byte, len(params.Query.QueryPowers))
	for _, power := range params.Query.QueryPowers {
		cts := make([][]byte, bundleCount)
		for bundleIdx := 0; bundleIdx < bundleCount; bundleIdx++ {
			slots := make([]uint64, itemsPerBundle*params.Item.FeltsPerItem)
			base := uint64(bundleIdx * itemsPerBundle)
			for bin := 0; bin < itemsPerBundle; bin++ {
				cellIdx := base + uint64(bin)
				felts, ok := coords[cellIdx]
				if !ok {
					continue
				}
				for c, v := range felts {
					slots[c*itemsPerBundle+bin] = uint64(mod.Pow(v, uint64(power)))
				}
			}
			pt := encoder.EncodeNTT(slots)
			ct := encryptor.EncryptNew(pt)
			data, err := seal.Compress(ct)
			if err != nil {
				log.Printf("apsi-receiver: %v", err)
				os.Exit(3)
			}
			cts[bundleIdx] = data
		}
		powersBytes[power] = cts
	}

	rlkBytes, err := seal.RelinKeyBytes(rlk)
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}

	op := network.SenderOperation{
		Type: network.OpQuery,
		Query: &network.QueryRequest{
			RelinKeyBytes: rlkBytes,
			Powers:        powersBytes,
		},
	}
	if err := network.SendOperation(ch, op); err != nil {
		log.Printf("apsi-receiver: send query: %v", err)
		os.Exit(2)
	}
	t.Sample("query encode+send")

	decoder, err := decode.NewDecoder(params, placements)
	if err != nil {
		log.Printf("apsi-receiver: %v", err)
		os.Exit(3)
	}

	var results []decode.MatchRecord
	if err := receiveAndDecode(ch, decoder, decryptor, encoder, labelKeys, &results); err != nil {
		log.Printf("apsi-receiver: receive results: %v", err)
		os.Exit(2)
	}
	t.Sample("query response+decode")

	out := os.Stdout
	if len(*outPath) > 0 {
		of, err := os.Create(*outPath)
		if err != nil {
			log.Printf("apsi-receiver: %v", err)
			os.Exit(1)
		}
		defer of.Close()
		out = of
	}
	if err := writeResults(out, results); err != nil {
		log.Printf("apsi-receiver: write results: %v", err)
		os.Exit(1)
	}

	if *verbose {
		t.Report(os.Stderr)
	}
}

func fetchParams(ch *network.StreamChannel) (psiparams.PSIParams, error) {
	if err := network.SendOperation(ch, network.SenderOperation{Type: network.OpParms, Parms: &network.ParmsRequest{}}); err != nil {
		return psiparams.PSIParams{}, err
	}
	return network.ReceiveParmsResponse(ch)
}

func runOPRF(ch *network.StreamChannel, rawItems [][]byte, verbose bool) ([]oprf.ItemHash, error) {
	receiver, blinded, err := oprf.NewReceiver(rawItems)
	if err != nil {
		return nil, err
	}
	op := network.SenderOperation{Type: network.OpOPRF, OPRF: &network.OPRFRequest{Queries: blinded}}
	if err := network.SendOperation(ch, op); err != nil {
		return nil, err
	}
	evaluated, failed, err := network.ReceiveOPRFResponse(ch)
	if err != nil {
		return nil, err
	}
	if verbose {
		for i, f := range failed {
			if f {
				log.Printf("apsi-receiver: oprf query %d failed on sender side", i)
			}
		}
	}
	return receiver.Finalize(evaluated)
}

func receiveAndDecode(ch *network.StreamChannel, decoder *decode.Decoder, decryptor *seal.Decryptor, encoder *seal.Encoder, labelKeys map[uint64]item.LabelKey, out *[]decode.MatchRecord) error {
	return network.ReceiveResultPackages(ch, func(pkg resultpkg.ResultPackage) error {
		records, err := decoder.Decode(pkg, decryptor, encoder, labelKeys)
		if err != nil {
			return err
		}
		*out = append(*out, records...)
		return nil
	})
}

func writeResults(w *os.File, records []decode.MatchRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Item.String() < records[j].Item.String()
	})

	for _, rec := range records {
		fields := []string{"0x" + rec.Item.String(), fmt.Sprintf("%t", rec.Found)}
		if rec.Label != nil {
			fields = append(fields, fmt.Sprintf("0x%x", rec.Label))
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	return cw.Error()
}
