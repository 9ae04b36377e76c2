//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package indexer

import "sync"

// Stamper hands out opstamps. Every add, delete and commit gets a stamp
// greater than all stamps handed out before.
type Stamper struct {
	sync.Mutex
	last uint64
}

// NewStamper continues after last, the opstamp of the last commit.
func NewStamper(last uint64) *Stamper {
	return &Stamper{last: last}
}

func (s *Stamper) Stamp() uint64 {
	s.Lock()
	defer s.Unlock()

	s.last++
	return s.last
}

// Last returns the most recent stamp without handing out a new one.
func (s *Stamper) Last() uint64 {
	s.Lock()
	defer s.Unlock()

	return s.last
}
