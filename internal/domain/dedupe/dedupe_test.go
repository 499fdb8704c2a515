package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/encorefm/encore/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should have default configuration", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording request IDs", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the request is new", func() {
				seen := d.SeenAndRecord(context.Background(), "req-1")

				Convey("Then it should return false and record the request", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the request was already seen", func() {
				d.SeenAndRecord(context.Background(), "req-1")
				seen := d.SeenAndRecord(context.Background(), "req-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording a request", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(context.Background(), "req-1")
			d.Unrecord(context.Background(), "req-1")

			Convey("Then the request should be seen as new again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(context.Background(), "req-1"), ShouldBeFalse)
			})
		})

		Convey("When the cache reaches its maximum size", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 0; i < 3; i++ {
				d.SeenAndRecord(context.Background(), fmt.Sprintf("req-%d", i))
			}

			Convey("And another request arrives", func() {
				d.SeenAndRecord(context.Background(), "req-3")

				Convey("Then the oldest entry should be evicted", func() {
					So(d.Size(), ShouldEqual, 3)
					So(d.SeenAndRecord(context.Background(), "req-0"), ShouldBeFalse)
					So(d.SeenAndRecord(context.Background(), "req-3"), ShouldBeTrue)
				})
			})
		})

		Convey("When a request is unrecorded and later recorded again", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			d.SeenAndRecord(context.Background(), "req-a")
			d.Unrecord(context.Background(), "req-a")
			d.SeenAndRecord(context.Background(), "req-b")
			d.SeenAndRecord(context.Background(), "req-c")
			d.SeenAndRecord(context.Background(), "req-a")

			Convey("And the cache fills up", func() {
				d.SeenAndRecord(context.Background(), "req-d")

				Convey("Then eviction should take the oldest live entry, not the re-recorded one", func() {
					So(d.Size(), ShouldEqual, 3)
					So(d.SeenAndRecord(context.Background(), "req-a"), ShouldBeTrue)
					So(d.SeenAndRecord(context.Background(), "req-b"), ShouldBeFalse)
				})
			})
		})

		Convey("When many goroutines record concurrently", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))

			var wg sync.WaitGroup
			var mu sync.Mutex
			firstSights := 0

			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(context.Background(), fmt.Sprintf("req-%d", i)) {
							mu.Lock()
							firstSights++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each request should be new exactly once", func() {
				So(firstSights, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
