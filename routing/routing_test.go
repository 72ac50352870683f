package routing_test

import (
	"github.com/nabbar/genesis-mesh/routing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Route convergence", func() {
	It("propagates a route across a three-node line within one announce cycle", func() {
		a := routing.New("A", routing.Default())
		b := routing.New("B", routing.Default())
		c := routing.New("C", routing.Default())

		a.AddNeighbor("B", 1)
		b.AddNeighbor("A", 1)
		b.AddNeighbor("C", 1)
		c.AddNeighbor("B", 1)

		pa := routing.NewProtocol(a, nil, nil)
		pb := routing.NewProtocol(b, nil, nil)
		pc := routing.NewProtocol(c, nil, nil)

		// One announce cycle: C announces itself to B, B applies and then
		// announces its table (including the learned route to C) to A.
		// Split horizon is per recipient, so B's announcement to A still
		// carries the route to C even though C is also B's direct neighbor.
		cAds := pc.BuildAnnouncement("B")
		pb.HandleAnnouncement("C", cAds)

		bAds := pb.BuildAnnouncement("A")
		pa.HandleAnnouncement("B", bAds)

		route, ok := a.Get("C")
		Expect(ok).To(BeTrue())
		Expect(route.NextHop).To(Equal("B"))
		Expect(route.Metric).To(Equal(2))

		var cSeq uint64
		for _, ad := range cAds {
			if ad.Destination == "C" {
				cSeq = ad.Sequence
			}
		}
		Expect(route.Sequence).To(Equal(cSeq))
	})
})

var _ = Describe("Table.Accept", func() {
	It("rejects an advertisement from a non-neighbor source", func() {
		tbl := routing.New("A", routing.Default())
		Expect(tbl.Accept("X", 1, 1, "not-a-neighbor")).To(BeFalse())
	})

	It("rejects an advertisement about the table's own node", func() {
		tbl := routing.New("A", routing.Default())
		tbl.AddNeighbor("B", 1)
		Expect(tbl.Accept("A", 1, 1, "B")).To(BeFalse())
	})

	It("rejects an advertisement whose metric exceeds the configured maximum", func() {
		cfg := routing.Default()
		cfg.MaxMetric = 5
		tbl := routing.New("A", cfg)
		tbl.AddNeighbor("B", 1)

		Expect(tbl.Accept("X", 1, 10, "B")).To(BeFalse())
	})

	It("prefers a strictly newer sequence, and a smaller metric at equal sequence", func() {
		tbl := routing.New("A", routing.Default())
		tbl.AddNeighbor("B", 1)

		Expect(tbl.Accept("X", 1, 1, "B")).To(BeTrue())
		r, _ := tbl.Get("X")
		Expect(r.Metric).To(Equal(2))

		Expect(tbl.Accept("X", 1, 3, "B")).To(BeFalse())

		Expect(tbl.Accept("X", 1, 0, "B")).To(BeTrue())
		r, _ = tbl.Get("X")
		Expect(r.Metric).To(Equal(1))

		Expect(tbl.Accept("X", 2, 5, "B")).To(BeTrue())
	})
})

var _ = Describe("Table.RemoveNeighbor", func() {
	It("invalidates the direct route and every route learned through that neighbor", func() {
		tbl := routing.New("A", routing.Default())
		tbl.AddNeighbor("B", 1)
		tbl.Accept("X", 1, 1, "B")

		invalidated := tbl.RemoveNeighbor("B")
		Expect(invalidated).To(HaveLen(2)) // direct route to B, plus learned route to X

		_, ok := tbl.Get("X")
		Expect(ok).To(BeFalse())
	})
})
