// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery finds candidate smart-home devices.
//
// Two scanners share the same Scan(ctx) contract:
//
//   - Simulator draws a random subset from a fixed pool after a delay. It is
//     the default and what the dashboard demo runs on.
//   - MDNSScanner browses the local network via mDNS (multicast DNS) for hubs
//     and bridges advertising the "_smarthome._tcp" service.
//
// # TXT Records
//
// MDNSScanner maps these TXT keys onto a device.Candidate:
//   - id: stable device identifier (optional; connecting mints one when absent)
//   - type: light, thermostat, lock, camera, speaker, vacuum or outlet
//   - room: room name
//   - conn: wifi or bluetooth (defaults to wifi)
//   - mac: MAC address for bluetooth devices
//
// Entries with a missing or unknown type are skipped.
//
// # Example Usage
//
//	scanner := discovery.NewMDNSScanner("_smarthome._tcp", "local.", 5*time.Second)
//
//	candidates, err := scanner.Scan(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range candidates {
//	    fmt.Printf("Found %s (%s)\n", c.Name, c.Type)
//	}
package discovery

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
)

// DefaultServiceType is the mDNS service smart-home bridges advertise.
const DefaultServiceType = "_smarthome._tcp"

// browseFunc matches zeroconf.Resolver.Browse. Browse returns once the query
// is sent and closes entries when ctx is done.
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// MDNSScanner discovers devices via mDNS.
type MDNSScanner struct {
	serviceType string
	domain      string
	timeout     time.Duration
	browse      browseFunc
}

// NewMDNSScanner creates a scanner that browses for timeout on each Scan.
func NewMDNSScanner(serviceType, domain string, timeout time.Duration) *MDNSScanner {
	return &MDNSScanner{
		serviceType: serviceType,
		domain:      domain,
		timeout:     timeout,
		browse: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			resolver, err := zeroconf.NewResolver(nil)
			if err != nil {
				return err
			}
			return resolver.Browse(ctx, service, domain, entries)
		},
	}
}

// Scan browses for the configured timeout and returns every valid entry
// seen, deduplicated by candidate key.
//
// zeroconf.Resolver.Browse is the producer: it pushes ServiceEntry records
// into a buffered channel until the browse context expires. A single
// consumer goroutine parses entries so a burst of advertisements never
// blocks the resolver. The consumer stops when the channel is closed or the
// browse context is done, whichever comes first.
func (s *MDNSScanner) Scan(ctx context.Context) ([]device.Candidate, error) {
	browseCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 10)
	found := make([]device.Candidate, 0)
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				c, valid := CandidateFromEntry(entry)
				if !valid || seen[c.Key()] {
					continue
				}
				seen[c.Key()] = true
				found = append(found, c)

				logger.Info().
					Str("candidate_id", c.Key()).
					Str("device_name", c.Name).
					Str("device_type", string(c.Type)).
					Str("address", c.Address()).
					Msg("Discovered device via mDNS")
			case <-browseCtx.Done():
				return
			}
		}
	}()

	if err := s.browse(browseCtx, s.serviceType, s.domain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, errors.NewScanError("mDNS browse", err)
	}

	<-browseCtx.Done()
	wg.Wait()

	// Parent cancellation aborts the scan; the browse timeout ends it normally.
	if err := ctx.Err(); err != nil {
		return nil, errors.NewScanError("mDNS browse", err)
	}
	return found, nil
}

// CandidateFromEntry converts a zeroconf service entry into a candidate.
// It reports false for entries without an address or a known device type.
func CandidateFromEntry(entry *zeroconf.ServiceEntry) (device.Candidate, bool) {
	if entry == nil {
		return device.Candidate{}, false
	}

	txt := ParseTXT(entry.Text)
	typ := device.Type(strings.ToLower(txt["type"]))
	if !typ.Valid() {
		return device.Candidate{}, false
	}

	conn := device.ConnectionType(strings.ToLower(txt["conn"]))
	if conn != device.ConnectionBluetooth {
		conn = device.ConnectionWiFi
	}

	// Prefer IPv4, fallback to IPv6
	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		addr = entry.AddrIPv6[0]
	}

	var ip string
	if addr != nil {
		ip = addr.String()
	}
	ip, mac := device.NormalizeAddresses(conn, ip, txt["mac"])
	if ip == "" && mac == "" {
		return device.Candidate{}, false
	}

	name := entry.Instance
	if name == "" {
		name = entry.HostName
	}

	return device.Candidate{
		ID:             txt["id"],
		Name:           name,
		Type:           typ,
		Room:           txt["room"],
		ConnectionType: conn,
		IPAddress:      ip,
		MACAddress:     mac,
	}, true
}

// ParseTXT splits "key=value" TXT strings into a map. Keys are lower-cased;
// entries without '=' are ignored.
func ParseTXT(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok || key == "" {
			continue
		}
		txt[strings.ToLower(key)] = value
	}
	return txt
}
