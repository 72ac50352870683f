package router_test

import (
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/router"
	"github.com/nabbar/genesis-mesh/schema"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func recip(s string) *string { return &s }

func newMsg(id string, recipient *string, ttl int) schema.WireMessage {
	return schema.WireMessage{
		MessageID:   id,
		Type:        schema.MsgData,
		SenderID:    "origin",
		RecipientID: recipient,
		TTL:         ttl,
	}
}

var _ = Describe("Router.Route", func() {
	It("delivers a message addressed to this node locally", func() {
		var delivered []schema.WireMessage
		r := router.New("self", nil, nil, nil, nil, func(m schema.WireMessage) {
			delivered = append(delivered, m)
		})

		r.Route(newMsg("m1", recip("self"), 5), "B")

		Expect(delivered).To(HaveLen(1))
		Expect(r.Stats().Delivered).To(Equal(uint64(1)))
	})

	It("suppresses a message whose id was already seen", func() {
		var delivered int
		r := router.New("self", nil, nil, nil, nil, func(m schema.WireMessage) { delivered++ })

		msg := newMsg("dup", recip("self"), 5)
		r.Route(msg, "B")
		r.Route(msg, "B")

		Expect(delivered).To(Equal(1))
		Expect(r.Stats().Duplicate).To(Equal(uint64(1)))
	})

	It("broadcasts to every neighbor except the one it arrived from", func() {
		var sentTo []string
		neighbors := func() []string { return []string{"B", "C", "D"} }
		send := func(neighborID string, m schema.WireMessage) liberr.Error {
			sentTo = append(sentTo, neighborID)
			return nil
		}

		r := router.New("self", neighbors, nil, nil, send, nil)
		r.Route(newMsg("b1", nil, 5), "B")

		Expect(sentTo).To(HaveLen(2))
		Expect(sentTo).ToNot(ContainElement("B"))
	})

	It("drops a broadcast whose TTL is already exhausted", func() {
		var sent int
		neighbors := func() []string { return []string{"B", "C"} }
		r := router.New("self", neighbors, nil, nil, func(n string, m schema.WireMessage) liberr.Error {
			sent++
			return nil
		}, nil)

		r.Route(newMsg("ttl0", nil, 0), "B")

		Expect(sent).To(Equal(0))
		Expect(r.Stats().Dropped).To(Equal(uint64(1)))
	})

	It("forwards a unicast message via the routing table's next hop", func() {
		lookup := func(dest string) (schema.Route, bool) {
			if dest == "Z" {
				return schema.Route{Destination: "Z", NextHop: "C"}, true
			}
			return schema.Route{}, false
		}
		hasConn := func(nodeID string) bool { return nodeID == "C" }

		var gotNeighbor string
		send := func(n string, m schema.WireMessage) liberr.Error {
			gotNeighbor = n
			return nil
		}

		r := router.New("self", nil, lookup, hasConn, send, nil)
		r.Route(newMsg("u1", recip("Z"), 5), "B")

		Expect(gotNeighbor).To(Equal("C"))
		Expect(r.Stats().Forwarded).To(Equal(uint64(1)))
	})

	It("drops a unicast message when no route is known", func() {
		lookup := func(dest string) (schema.Route, bool) { return schema.Route{}, false }
		var sent int
		send := func(n string, m schema.WireMessage) liberr.Error { sent++; return nil }

		r := router.New("self", nil, lookup, nil, send, nil)
		r.Route(newMsg("u2", recip("Z"), 5), "B")

		Expect(sent).To(Equal(0))
		Expect(r.Stats().Dropped).To(Equal(uint64(1)))
	})
})
