/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package head collects <title> and <meta> tags declared by components while a page renders so
// the document can place them in its <head>.
package head

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/a-h/templ"
)

// Tag is an element of the document head.
type Tag struct {
	// Name of the element: "title" or "meta"
	Name string

	// Key identifies the tag; a later tag with the same key replaces an earlier one.
	Key string

	// Attributes of the element
	Attributes map[string]string

	// Text content of the element
	Text string
}

// Render implements templ.Component.
func (tag Tag) Render(ctx context.Context, w io.Writer) error {
	if _, err := io.WriteString(w, "<"+tag.Name); err != nil {
		return err
	}

	names := make([]string, 0, len(tag.Attributes))
	for name := range tag.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := io.WriteString(w, " "+name+`="`+templ.EscapeString(tag.Attributes[name])+`"`); err != nil {
			return err
		}
	}

	if tag.Name == "meta" {
		_, err := io.WriteString(w, ">")
		return err
	}
	_, err := io.WriteString(w, ">"+templ.EscapeString(tag.Text)+"</"+tag.Name+">")
	return err
}

// Tags is a list of head tags. It renders as a templ.Component.
type Tags []Tag

// Render implements templ.Component.
func (tags Tags) Render(ctx context.Context, w io.Writer) error {
	for _, tag := range tags {
		if err := tag.Render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// Collector gathers the tags declared during a render. A Collector serves one request; it is safe
// for concurrent use.
type Collector struct {
	mutex sync.Mutex
	tags  Tags
	index map[string]int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		index: map[string]int{},
	}
}

// Add declares a tag. A tag with the key of a previous one replaces it in place.
func (collector *Collector) Add(tag Tag) {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()

	if len(tag.Key) > 0 {
		if i, exists := collector.index[tag.Key]; exists {
			collector.tags[i] = tag
			return
		}
		collector.index[tag.Key] = len(collector.tags)
	}
	collector.tags = append(collector.tags, tag)
}

// Tags returns the tags declared so far.
func (collector *Collector) Tags() Tags {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	return append(Tags(nil), collector.tags...)
}

// Rewind returns the declared tags and clears the collector, like the unmount of the components
// that declared them.
func (collector *Collector) Rewind() Tags {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()

	tags := collector.tags
	collector.tags = nil
	collector.index = map[string]int{}
	return tags
}

type collectorKey struct{}

// WithCollector returns a context in which Title and Meta declare tags to collector.
func WithCollector(ctx context.Context, collector *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, collector)
}

// CollectorFrom returns the collector of ctx or nil.
func CollectorFrom(ctx context.Context) *Collector {
	collector, _ := ctx.Value(collectorKey{}).(*Collector)
	return collector
}

// declare returns a component that adds tag to the collector in the context of the render and
// writes nothing. Without a collector, the tag is dropped.
func declare(tag Tag) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if collector := CollectorFrom(ctx); collector != nil {
			collector.Add(tag)
		}
		return nil
	})
}

// Title declares the <title> of the page.
func Title(text string) templ.Component {
	return declare(Tag{
		Name: "title",
		Key:  "title",
		Text: text,
	})
}

// Meta declares <meta name="..." content="...">. Tags with the same name replace each other.
func Meta(name string, content string) templ.Component {
	return declare(Tag{
		Name: "meta",
		Key:  "meta:" + name,
		Attributes: map[string]string{
			"name":    name,
			"content": content,
		},
	})
}

// Charset declares <meta charset="...">.
func Charset(charset string) templ.Component {
	return declare(Tag{
		Name: "meta",
		Key:  "charset",
		Attributes: map[string]string{
			"charset": charset,
		},
	})
}
