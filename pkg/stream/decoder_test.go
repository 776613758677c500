package stream_test

import (
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/transport"
	"github.com/papercomputeco/ollama-go/pkg/transport/mock"
)

type generateEvents = []stream.Event

// drain pulls events until io.EOF or an error and returns both.
func drain[R stream.Record](d *stream.Decoder[R]) ([]stream.Event, error) {
	var events []stream.Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func chunk(text string) stream.Event {
	return stream.Chunk[llm.GenerateResponse]{Text: text, Record: llm.GenerateResponse{Response: text}}
}

func contentLines(n int) string {
	var b strings.Builder
	for i := range n {
		b.WriteString(`{"model":"llama3.2","response":"tok`)
		b.WriteByte(byte('a' + i))
		b.WriteString("\",\"done\":false}\n")
	}
	return b.String()
}

const helloStream = `{"response":"Hel"}` + "\n" + `{"response":"lo"}` + "\n" + `{"done":true}` + "\n"

var _ = Describe("Decoder", func() {
	Describe("decoding a complete stream", func() {
		It("yields content chunks followed by a single Done", func() {
			body := mock.NewBody(helloStream)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(generateEvents{
				chunk("Hel"),
				chunk("lo"),
				stream.Done[llm.GenerateResponse]{
					Record:  llm.GenerateResponse{Done: true},
					Content: "Hello",
				},
			}))
			Expect(d.State()).To(Equal(stream.StateComplete))
		})

		It("surfaces an in-band error as the terminal event", func() {
			body := mock.NewBody(`{"response":"Hi"}` + "\n" + `{"error":"model not found"}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(generateEvents{
				chunk("Hi"),
				stream.ErrorEvent{Message: "model not found"},
			}))
		})

		It("yields N chunks in order and then Done, and nothing after", func() {
			const n = 5
			body := mock.NewBody(contentLines(n) + `{"model":"llama3.2","response":"","done":true,"eval_count":5}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			for i := range n {
				ev, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
				c, ok := ev.(stream.Chunk[llm.GenerateResponse])
				Expect(ok).To(BeTrue())
				Expect(c.Text).To(Equal("tok" + string(rune('a'+i))))
			}

			ev, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			done, ok := ev.(stream.Done[llm.GenerateResponse])
			Expect(ok).To(BeTrue())
			Expect(done.Content).To(Equal("tokatokbtokctokdtoke"))
			Expect(done.Record.EvalCount).To(Equal(5))

			for range 3 {
				_, err = d.Next()
				Expect(err).To(MatchError(io.EOF))
			}
		})

		It("includes a fragment carried by the final record in the aggregate", func() {
			body := mock.NewBody(
				`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n" +
					`{"message":{"role":"assistant","content":" world"},"done":true,"done_reason":"stop"}` + "\n",
			)
			d := stream.NewDecoder[llm.ChatResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			done := events[1].(stream.Done[llm.ChatResponse])
			Expect(done.Content).To(Equal("Hello world"))
			Expect(done.Record.DoneReason).To(Equal("stop"))
			Expect(d.Content()).To(Equal("Hello world"))
		})

		It("carries tool calls on the chunk record", func() {
			body := mock.NewBody(
				`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"fibonacci","arguments":{"n":11}}}]},"done":false}` + "\n" +
					`{"message":{"role":"assistant","content":""},"done":true}` + "\n",
			)
			d := stream.NewDecoder[llm.ChatResponse](body)

			ev, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			c := ev.(stream.Chunk[llm.ChatResponse])
			Expect(c.Record.Message.ToolCalls).To(HaveLen(1))
			Expect(c.Record.Message.ToolCalls[0].Function.Name).To(Equal("fibonacci"))
			Expect(c.Record.Message.ToolCalls[0].Function.Arguments).To(MatchJSON(`{"n":11}`))
		})

		It("lets an error field win over a done flag", func() {
			body := mock.NewBody(`{"error":"out of memory","done":true}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(generateEvents{stream.ErrorEvent{Message: "out of memory"}}))
		})

		It("reads the message of an object-shaped error", func() {
			body := mock.NewBody(`{"error":{"message":"context canceled"}}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(generateEvents{stream.ErrorEvent{Message: "context canceled"}}))
		})

		It("treats a null error field as absent", func() {
			body := mock.NewBody(`{"response":"ok","error":null}` + "\n" + `{"done":true}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0]).To(Equal(chunk("ok")))
		})

		It("matches the done and error keys exactly", func() {
			body := mock.NewBody(
				`{"response":"a","Done":true}` + "\n" +
					`{"response":"b","ERROR":"not a failure"}` + "\n" +
					`{"done":true}` + "\n",
			)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0]).To(BeAssignableToTypeOf(stream.Chunk[llm.GenerateResponse]{}))
			Expect(events[1]).To(BeAssignableToTypeOf(stream.Chunk[llm.GenerateResponse]{}))
			done, ok := events[2].(stream.Done[llm.GenerateResponse])
			Expect(ok).To(BeTrue())
			Expect(done.Content).To(Equal("ab"))
		})

		It("ends with io.EOF on an empty body", func() {
			body := mock.NewBody()
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := d.Next()
			Expect(err).To(MatchError(io.EOF))
			Expect(d.State()).To(Equal(stream.StateComplete))
			Expect(body.Closes()).To(Equal(1))
		})

		It("skips blank lines and strips carriage returns", func() {
			body := mock.NewBody("\n", `{"response":"a"}`+"\r\n", "\n\n  \n", `{"done":true}`+"\r\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0]).To(Equal(chunk("a")))
		})
	})

	Describe("chunk boundaries", func() {
		full := `{"response":"Hel"}` + "\n" + `{"response":"lo"}` + "\n" + contentLines(3) +
			`{"response":"ü€","done":false}` + "\n" + `{"done":true,"eval_count":7}` + "\n"

		decodeAll := func(body *mock.Body) []stream.Event {
			d := stream.NewDecoder[llm.GenerateResponse](body)
			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			return events
		}

		It("never affect the decoded sequence", func() {
			expected := decodeAll(mock.NewBody(full))
			Expect(expected).To(HaveLen(7))

			for size := 1; size <= len(full); size++ {
				Expect(decodeAll(mock.Split(full, size))).To(Equal(expected), "chunk size %d", size)
			}
		})

		It("handles every two-way split point", func() {
			expected := decodeAll(mock.NewBody(full))

			for i := 1; i < len(full); i++ {
				Expect(decodeAll(mock.NewBody(full[:i], full[i:]))).To(Equal(expected), "split at %d", i)
			}
		})

		It("reassembles a record split across reads and merged with the next", func() {
			line1 := `{"model":"llama2","response":"Hello","done":false}`
			line2 := `{"model":"llama2","response":" World","done":false}`
			body := mock.NewBody(line1[:10], line1[10:]+"\n"+line2, "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].(stream.Chunk[llm.GenerateResponse]).Text).To(Equal("Hello"))
			Expect(events[1].(stream.Chunk[llm.GenerateResponse]).Text).To(Equal(" World"))
		})
	})

	Describe("decode failures", func() {
		It("stops at a malformed record after yielding the records before it", func() {
			body := mock.NewBody(contentLines(2) + "This is a plain text message.\n" + contentLines(2) + `{"done":true}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(events).To(HaveLen(2))

			var decodeErr *stream.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Line).To(Equal(3))
			Expect(decodeErr.Record).To(Equal("This is a plain text message."))
			Expect(decodeErr.Truncated).To(BeFalse())
			Expect(transport.IsTransport(err)).To(BeFalse())

			_, again := d.Next()
			Expect(again).To(BeIdenticalTo(err))
			Expect(d.State()).To(Equal(stream.StateFailed))
			Expect(body.Closes()).To(Equal(1))
		})

		It("rejects a JSON value that is not a record", func() {
			body := mock.NewBody("42\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := d.Next()
			var decodeErr *stream.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Line).To(Equal(1))
		})

		DescribeTable("rejects every value that is not an object the same way",
			func(record string) {
				body := mock.NewBody(`{"response":"ok"}` + "\n" + record + "\n" + `{"done":true}` + "\n")
				d := stream.NewDecoder[llm.GenerateResponse](body)

				events, err := drain(d)
				Expect(events).To(Equal(generateEvents{chunk("ok")}))

				var decodeErr *stream.DecodeError
				Expect(errors.As(err, &decodeErr)).To(BeTrue())
				Expect(decodeErr.Line).To(Equal(2))
				Expect(err).To(MatchError(stream.ErrNotObject))
				Expect(body.Closes()).To(Equal(1))
			},
			Entry("null", "null"),
			Entry("array", "[]"),
			Entry("string", `"done"`),
			Entry("boolean", "true"),
		)

		It("rejects a done flag that is not a boolean", func() {
			body := mock.NewBody(`{"response":"a","done":"yes"}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := d.Next()
			Expect(err).To(BeAssignableToTypeOf(&stream.DecodeError{}))
		})

		It("rejects a record whose fields have the wrong types", func() {
			body := mock.NewBody(`{"response":17}` + "\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := d.Next()
			Expect(err).To(BeAssignableToTypeOf(&stream.DecodeError{}))
		})

		It("reports a truncated trailing record instead of dropping it", func() {
			body := mock.NewBody(`{"response":"a"}` + "\n" + `{"respon`)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(events).To(Equal(generateEvents{chunk("a")}))

			var decodeErr *stream.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Truncated).To(BeTrue())
			Expect(decodeErr.Line).To(Equal(2))
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})

		It("accepts a valid trailing record without a newline", func() {
			body := mock.NewBody(`{"response":"a"}` + "\n" + `{"done":true}`)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[1]).To(BeAssignableToTypeOf(stream.Done[llm.GenerateResponse]{}))
		})

		It("bounds the size of a single record", func() {
			long := `{"response":"` + strings.Repeat("x", 200) + `"}` + "\n"
			body := mock.NewBody(`{"response":"a"}`+"\n", long)
			d := stream.NewDecoder[llm.GenerateResponse](body, stream.WithMaxRecordSize(64))

			events, err := drain(d)
			Expect(events).To(HaveLen(1))

			var decodeErr *stream.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.TooLarge).To(BeTrue())
			Expect(body.Closes()).To(Equal(1))
		})
	})

	Describe("transport failures", func() {
		It("wraps a read failure as a transport error", func() {
			body := mock.NewBody(`{"response":"a"}` + "\n")
			body.Err = errors.New("connection reset by peer")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			events, err := drain(d)
			Expect(events).To(Equal(generateEvents{chunk("a")}))

			var transportErr *transport.Error
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Op).To(Equal("read"))
			Expect(err).To(MatchError(ContainSubstring("connection reset by peer")))
			Expect(err).NotTo(BeAssignableToTypeOf(&stream.DecodeError{}))
			Expect(body.Closes()).To(Equal(1))
		})

		It("passes a transport error through unmodified", func() {
			original := &transport.Error{Op: "read", URL: "http://localhost:11434/api/generate", Err: io.ErrClosedPipe}
			body := mock.NewBody(`{"response":"a"}` + "\n")
			body.Err = original
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := drain(d)
			Expect(err).To(BeIdenticalTo(original))
		})

		It("prefers the transport error over a partial record cut off by it", func() {
			body := mock.NewBody(`{"response":"a"}` + "\n" + `{"resp`)
			body.Err = errors.New("i/o timeout")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			_, err := drain(d)
			Expect(transport.IsTransport(err)).To(BeTrue())
			Expect(err).NotTo(BeAssignableToTypeOf(&stream.DecodeError{}))
		})
	})

	Describe("cancellation", func() {
		It("releases the body exactly once and stops reading when the caller stops", func() {
			lines := strings.SplitAfter(contentLines(5)+`{"done":true}`+"\n", "\n")
			body := mock.NewBody(lines...)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			for range 2 {
				_, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
			}
			readsBeforeClose := body.Reads()

			Expect(d.Close()).To(Succeed())
			Expect(d.Close()).To(Succeed())
			Expect(body.Closes()).To(Equal(1))
			Expect(d.State()).To(Equal(stream.StateClosed))

			_, err := d.Next()
			Expect(err).To(MatchError(stream.ErrClosed))
			Expect(body.Reads()).To(Equal(readsBeforeClose))
			Expect(body.ReadsAfterClose()).To(BeZero())
			Expect(body.Consumed()).To(BeFalse())
		})

		It("closes the body when a range over All is broken", func() {
			body := mock.NewBody(strings.SplitAfter(contentLines(4)+`{"done":true}`+"\n", "\n")...)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			seen := 0
			for ev, err := range d.All() {
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeAssignableToTypeOf(stream.Chunk[llm.GenerateResponse]{}))
				seen++
				if seen == 2 {
					break
				}
			}

			Expect(seen).To(Equal(2))
			Expect(body.Closes()).To(Equal(1))
			Expect(body.ReadsAfterClose()).To(BeZero())
			Expect(d.State()).To(Equal(stream.StateClosed))
		})

		It("ranges over every event with All", func() {
			body := mock.NewBody(helloStream)
			d := stream.NewDecoder[llm.GenerateResponse](body)

			var kinds []string
			for ev, err := range d.All() {
				Expect(err).NotTo(HaveOccurred())
				switch ev.(type) {
				case stream.Chunk[llm.GenerateResponse]:
					kinds = append(kinds, "chunk")
				case stream.Done[llm.GenerateResponse]:
					kinds = append(kinds, "done")
				case stream.ErrorEvent:
					kinds = append(kinds, "error")
				}
			}

			Expect(kinds).To(Equal([]string{"chunk", "chunk", "done"}))
			Expect(body.Closes()).To(Equal(1))
		})

		It("yields the failure to the range body and then stops", func() {
			body := mock.NewBody(`{"response":"a"}` + "\nnot json\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			var errs []error
			for _, err := range d.All() {
				if err != nil {
					errs = append(errs, err)
				}
			}
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(BeAssignableToTypeOf(&stream.DecodeError{}))
		})

		It("releases the body as soon as the terminal event is read", func() {
			body := mock.NewBody(helloStream, `{"response":"never read"}`+"\n")
			d := stream.NewDecoder[llm.GenerateResponse](body)

			for range 3 {
				_, err := d.Next()
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(body.Closes()).To(Equal(1))
			_, err := d.Next()
			Expect(err).To(MatchError(io.EOF))
			Expect(body.ReadsAfterClose()).To(BeZero())
			Expect(d.Close()).To(Succeed())
			Expect(body.Closes()).To(Equal(1))
			Expect(d.State()).To(Equal(stream.StateComplete))
		})
	})

	Describe("State", func() {
		It("reports lifecycle names", func() {
			Expect(stream.StateNew.String()).To(Equal("new"))
			Expect(stream.StateStreaming.Terminal()).To(BeFalse())
			Expect(stream.StateFailed.Terminal()).To(BeTrue())
			Expect(stream.StateClosed.String()).To(Equal("closed"))
		})
	})
})
