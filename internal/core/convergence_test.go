// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package core_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/core"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/loop/looptest"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/resync"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/internal/transport"
)

const step = 50 * time.Millisecond

type peer struct {
	user    string
	sched   *looptest.Manual
	ep      *transport.Endpoint
	notices *notify.Recorder
	journal *journal.Memory
	engine  *core.Engine
}

type table struct {
	ctx    context.Context
	hub    *transport.Hub
	cat    *actor.Catalog
	oracle *access.Static
	peers  []*peer
}

func newTable() *table {
	cat, err := actor.NewCatalog(
		actor.Info{ID: "alice", Name: "Alice", Src: "alice.png", Owners: []string{"alice"}},
		actor.Info{ID: "bob", Name: "Bob", Src: "bob.png", Owners: []string{"bob"}, PlayerOwned: true},
		actor.Info{ID: "goblin", Name: "Goblin", Src: "goblin.png"},
		actor.Info{ID: "ogre", Name: "Ogre", Src: "ogre.png"},
	)
	Expect(err).NotTo(HaveOccurred())
	oracle, err := access.FromCatalog(cat.All(), "gm")
	Expect(err).NotTo(HaveOccurred())
	return &table{ctx: context.Background(), hub: transport.NewHub(), cat: cat, oracle: oracle}
}

func (tb *table) join(user string) *peer {
	ep, err := tb.hub.Join("peer-" + user)
	Expect(err).NotTo(HaveOccurred())

	cfg := config.Default()
	cfg.UserID = user
	cfg.PeerID = "peer-" + user
	p := &peer{
		user:    user,
		sched:   looptest.NewManual(),
		ep:      ep,
		notices: &notify.Recorder{},
		journal: journal.NewMemory(),
	}
	p.engine, err = core.New(tb.ctx, core.Options{
		Config:   cfg,
		Actors:   tb.cat,
		Access:   tb.oracle,
		Channel:  ep,
		Notifier: p.notices,
		Journal:  p.journal,
		Sched:    p.sched,
	})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = p.engine.Close() })
	tb.peers = append(tb.peers, p)
	return p
}

// deliver dispatches every envelope waiting in a peer's inbox. It reports
// whether anything was delivered.
func (tb *table) deliver() bool {
	delivered := false
	for _, p := range tb.peers {
		for drained := false; !drained; {
			select {
			case env, ok := <-p.ep.Messages():
				if !ok {
					drained = true
					continue
				}
				_ = p.engine.Bus().Dispatch(tb.ctx, env)
				p.sched.Drain()
				delivered = true
			default:
				drained = true
			}
		}
	}
	return delivered
}

// run lets every peer's clock advance by d in lockstep, delivering envelopes
// between steps.
func (tb *table) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		for tb.deliver() {
		}
		for _, p := range tb.peers {
			p.sched.Advance(step)
		}
	}
	for tb.deliver() {
	}
}

func (p *peer) do(fn func(st *stage.Stage) error) {
	Expect(p.engine.Do(context.Background(), fn)).To(Succeed())
	p.sched.Drain()
}

func (p *peer) inject(actorID string) {
	p.do(func(st *stage.Stage) error {
		return st.Inject(context.Background(), actorID, insert.SideRight, protocol.Emotions{})
	})
}

func (p *peer) ids() []string {
	var ids []string
	p.do(func(st *stage.Stage) error {
		ids = st.IDs()
		return nil
	})
	return ids
}

func (p *peer) snapshot() protocol.ResyncPayload {
	snap, err := p.engine.Snapshot(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return snap
}

func errCode(err error) any {
	oopsErr, ok := oops.AsOops(err)
	Expect(ok).To(BeTrue(), "expected oops error, got %T", err)
	return oopsErr.Code()
}

var _ = Describe("Peers sharing a scene", func() {
	var (
		tb               *table
		gm, alice, bob   *peer
		resyncCompletion = resync.ResyncSettleDelay + resync.ResyncApplyDelay + time.Second
	)

	BeforeEach(func() {
		tb = newTable()
		gm = tb.join("gm")
		alice = tb.join("alice")
		bob = tb.join("bob")
	})

	Describe("replicating local operations", func() {
		It("shows every injected actor on every peer", func() {
			alice.inject("alice")
			bob.inject("bob")
			gm.inject("goblin")
			tb.run(time.Second)

			for _, p := range tb.peers {
				Expect(p.ids()).To(ConsistOf("theatre-alice", "theatre-bob", "theatre-goblin"), p.user)
			}
		})

		It("removes an exiting insert everywhere once it settles", func() {
			alice.inject("alice")
			gm.inject("goblin")
			tb.run(time.Second)

			alice.do(func(st *stage.Stage) error {
				return st.Remove(context.Background(), "alice")
			})
			tb.run(stage.RemoveSettleDelay + 500*time.Millisecond)

			for _, p := range tb.peers {
				Expect(p.ids()).To(Equal([]string{"theatre-goblin"}), p.user)
			}
		})

		It("does not let a player remove someone else's actor", func() {
			gm.inject("goblin")
			tb.run(time.Second)

			err := alice.engine.Do(context.Background(), func(st *stage.Stage) error {
				return st.Remove(context.Background(), "goblin")
			})
			Expect(errCode(err)).To(Equal(stage.CodePermissionDenied))
			Expect(alice.notices.Keys()).To(ContainElement(notify.PermissionDenied))

			tb.run(stage.RemoveSettleDelay)
			for _, p := range tb.peers {
				Expect(p.ids()).To(Equal([]string{"theatre-goblin"}), p.user)
			}
		})

		It("shows the typing indicator of a remote user until they go quiet", func() {
			alice.do(func(st *stage.Stage) error {
				return st.Activate(context.Background(), "alice")
			})
			tb.run(time.Second)
			Expect(alice.engine.Typing(context.Background(), protocol.Emotions{Emote: "happy"})).To(Succeed())
			tb.run(step)

			var typingAs string
			var typing bool
			bob.do(func(st *stage.Stage) error {
				typingAs, typing = st.Typing("peer-alice")
				return nil
			})
			Expect(typing).To(BeTrue())
			Expect(typingAs).To(Equal("theatre-alice"))

			tb.run(stage.TypingTimeout)
			bob.do(func(st *stage.Stage) error {
				_, typing = st.Typing("peer-alice")
				return nil
			})
			Expect(typing).To(BeFalse())
		})

		It("journals what each peer sends and receives", func() {
			alice.inject("alice")
			tb.run(time.Second)

			Expect(alice.journal.Entries()).To(ContainElement(HaveField("Direction", journal.Sent)))
			Expect(bob.journal.Entries()).To(ContainElement(HaveField("Envelope.Subtype", "enterscene")))
		})
	})

	Describe("resynchronizing", func() {
		BeforeEach(func() {
			alice.inject("alice")
			bob.inject("bob")
			gm.inject("goblin")
			gm.inject("ogre")
			tb.run(time.Second)
		})

		It("makes every player match the GM's order after a push", func() {
			gm.do(func(st *stage.Stage) error {
				if err := st.Push(context.Background(), "ogre", true); err != nil {
					return err
				}
				return st.SetNarrator(context.Background(), true)
			})
			tb.run(time.Second)
			Expect(gm.engine.PushPlayers(context.Background())).To(Succeed())
			tb.run(resyncCompletion)

			want := gm.snapshot()
			Expect(want.InsertData).To(HaveLen(4))
			for _, p := range []*peer{alice, bob} {
				got := p.snapshot()
				Expect(got.InsertData).To(Equal(want.InsertData), p.user)
				Expect(got.Narrator).To(BeTrue(), p.user)
				Expect(p.notices.Keys()).To(ContainElement(notify.ResyncApplied), p.user)
			}
		})

		It("refuses a push from a player", func() {
			err := alice.engine.PushPlayers(context.Background())
			Expect(errCode(err)).To(Equal(stage.CodeNotGM))
			Expect(alice.notices.Keys()).To(ContainElement(notify.NotGM))
		})

		It("brings a late joiner up to date with an any request", func() {
			Expect(gm.engine.PushPlayers(context.Background())).To(Succeed())
			tb.run(resyncCompletion)

			carol := tb.join("carol")
			Expect(carol.engine.RequestResync(context.Background(), protocol.ResyncAny)).To(Succeed())
			tb.run(resyncCompletion)

			Expect(carol.snapshot().InsertData).To(Equal(gm.snapshot().InsertData))
			Expect(carol.notices.Keys()).To(ContainElement(notify.ResyncApplied))
		})

		It("answers a gm request from the GM alone", func() {
			carol := tb.join("carol")
			Expect(carol.engine.RequestResync(context.Background(), protocol.ResyncGM)).To(Succeed())
			tb.run(resyncCompletion)

			Expect(carol.snapshot().InsertData).To(Equal(gm.snapshot().InsertData))
			Expect(carol.notices.Notices()).To(ContainElement(And(
				HaveField("Key", notify.ResyncApplied),
				HaveField("Text", "peer-gm"),
			)))
		})

		It("times out when no GM is listening", func() {
			Expect(gm.engine.Close()).To(Succeed())
			carol := tb.join("carol")
			Expect(carol.engine.RequestResync(context.Background(), protocol.ResyncGM)).To(Succeed())
			tb.run(resync.RequestTimeout + step)

			Expect(carol.notices.Keys()).To(ContainElement(notify.ResyncTimeout))
			Expect(carol.ids()).To(BeEmpty())
		})
	})
})
