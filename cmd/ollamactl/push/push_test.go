package pushcmder

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
	"github.com/papercomputeco/ollama-go/proxy"
)

var _ = Describe("Push Command", func() {
	var (
		ctx        context.Context
		tmpDir     string
		localPath  string
		serverPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "ollamactl-push-test-*")
		Expect(err).NotTo(HaveOccurred())
		localPath = filepath.Join(tmpDir, "local.db")
		serverPath = filepath.Join(tmpDir, "server.db")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	makeNode := func(role llm.Role, text string, parent *merkle.Node) *merkle.Node {
		return merkle.NewNode(merkle.NewBucket(llm.NewMessage(role, text), "test-model"), parent)
	}

	seed := func(nodes ...*merkle.Node) {
		local, err := merkle.NewSQLiteStorer(localPath)
		Expect(err).NotTo(HaveOccurred())
		defer local.Close()
		for _, n := range nodes {
			_, err := local.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	startServer := func() (string, func()) {
		srv, err := proxy.New(proxy.Config{ListenAddr: ":0", DBPath: serverPath}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = srv.RunWithListener(listener)
		}()

		addr := "http://" + listener.Addr().String()
		cleanup := func() {
			_ = srv.Shutdown()
			_ = srv.Close()
		}
		return addr, cleanup
	}

	serverNodes := func() []*merkle.Node {
		s, err := merkle.NewSQLiteStorer(serverPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		nodes, err := s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return nodes
	}

	push := func(addr string, extra ...string) string {
		var out bytes.Buffer
		cmd := NewPushCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--sqlite", localPath}, append(extra, addr)...))
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		return out.String()
	}

	It("pushes local nodes to a remote server", func() {
		nodeA := makeNode(llm.RoleUser, "hello from push test", nil)
		nodeB := makeNode(llm.RoleAssistant, "hi back from push test", nodeA)
		seed(nodeA, nodeB)

		addr, cleanup := startServer()
		defer cleanup()

		out := push(addr)
		Expect(out).To(ContainSubstring("Pushed 2 new nodes (0 already existed, 0 errors)"))

		nodes := serverNodes()
		Expect(nodes).To(HaveLen(2))
		Expect([]string{nodes[0].Hash, nodes[1].Hash}).To(ConsistOf(nodeA.Hash, nodeB.Hash))
	})

	It("deduplicates on double push", func() {
		seed(makeNode(llm.RoleUser, "dedup push test", nil))

		addr, cleanup := startServer()
		defer cleanup()

		push(addr)
		out := push(addr)
		Expect(out).To(ContainSubstring("Pushed 0 new nodes (1 already existed, 0 errors)"))

		Expect(serverNodes()).To(HaveLen(1))
	})

	It("sends nodes in batches", func() {
		root := makeNode(llm.RoleUser, "first", nil)
		mid := makeNode(llm.RoleAssistant, "second", root)
		leaf := makeNode(llm.RoleUser, "third", mid)
		seed(root, mid, leaf)

		addr, cleanup := startServer()
		defer cleanup()

		out := push(addr, "--batch-size", "1")
		Expect(out).To(ContainSubstring("Pushed 3 new nodes"))
		Expect(serverNodes()).To(HaveLen(3))
	})

	It("reports an empty database", func() {
		seed()

		addr, cleanup := startServer()
		defer cleanup()

		Expect(push(addr)).To(ContainSubstring("No local nodes to push."))
	})

	It("rejects a non-positive batch size", func() {
		cmd := NewPushCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--sqlite", localPath, "--batch-size", "0", "http://127.0.0.1:1"})
		Expect(cmd.ExecuteContext(ctx)).To(MatchError(ContainSubstring("--batch-size must be positive")))
	})

	It("fails when the server is unreachable", func() {
		seed(makeNode(llm.RoleUser, "nobody home", nil))

		cmd := NewPushCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--sqlite", localPath, "http://127.0.0.1:1"})
		Expect(cmd.ExecuteContext(ctx)).To(MatchError(ContainSubstring("push failed on batch 0-0")))
	})
})
