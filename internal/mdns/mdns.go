// Package mdns builds the `_hap._tcp` TXT record and keeps it in sync with
// the accessory's current pairing/configuration state. The responder
// itself is an external collaborator, reached through platform.Network.
package mdns

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/platform"
)

// Fields is the accessory state the TXT record is derived from, per
// spec.md §4.9.
type Fields struct {
	ConfigNumber uint32
	AccessoryID  string // "XX:XX:XX:XX:XX:XX"
	Model        string
	StateNumber  uint8
	Paired       bool
	Category     uint16
}

// TXT renders f into the exact key set spec.md §4.9 names: c#, id, md, pv,
// s#, sf, ci, ff.
func TXT(f Fields) map[string]string {
	sf := "0"
	if !f.Paired {
		sf = "1"
	}
	return map[string]string{
		"c#": fmt.Sprintf("%d", f.ConfigNumber),
		"id": f.AccessoryID,
		"md": f.Model,
		"pv": "1.1",
		"s#": fmt.Sprintf("%d", f.StateNumber),
		"sf": sf,
		"ci": fmt.Sprintf("%d", f.Category),
		"ff": "0",
	}
}

// Publisher tracks whether the record has been published yet and which
// TXT fields last changed, so repeated calls update in place instead of
// re-registering the service.
type Publisher struct {
	net  platform.Network
	name string
	port int
	log  *logrus.Entry

	mu        sync.Mutex
	published bool
	last      map[string]string
}

// NewPublisher creates a Publisher for one `_hap._tcp` service instance.
func NewPublisher(net platform.Network, name string, port int, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{net: net, name: name, port: port, log: log.WithField("component", "mdns")}
}

// Apply publishes the record on first call and thereafter updates it in
// place, logging every c#/s#/sf transition. A no-op diff issues no network
// call at all.
func (p *Publisher) Apply(ctx context.Context, f Fields) error {
	txt := TXT(f)

	p.mu.Lock()
	first := !p.published
	changed := diff(p.last, txt)
	p.mu.Unlock()

	if !first && len(changed) == 0 {
		return nil
	}

	record := platform.MDNSRecord{Name: p.name, Port: p.port, TXT: txt}
	var err error
	if first {
		err = p.net.PublishMDNS(ctx, record)
	} else {
		err = p.net.UpdateMDNS(ctx, record)
		p.logTransitions(changed)
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.published = true
	p.last = txt
	p.mu.Unlock()
	return nil
}

func (p *Publisher) logTransitions(changed map[string][2]string) {
	for key, from := range changed {
		p.log.WithFields(logrus.Fields{"field": key, "from": from[0], "to": from[1]}).Info("mdns: TXT field changed")
	}
}

// diff returns, for every key whose value differs between old and next,
// the (old, new) pair. A nil old map means every key in next is reported
// as changed against "".
func diff(old, next map[string]string) map[string][2]string {
	changed := map[string][2]string{}
	for k, v := range next {
		if old[k] != v {
			changed[k] = [2]string{old[k], v}
		}
	}
	return changed
}
