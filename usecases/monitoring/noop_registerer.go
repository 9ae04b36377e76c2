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

package monitoring

import "github.com/prometheus/client_golang/prometheus"

// NoopRegisterer accepts every collector without exposing it anywhere.
// Indexes opened without a registerer use it, their series still count
// and can be read directly, for example in tests.
type NoopRegisterer struct{}

func (NoopRegisterer) Register(prometheus.Collector) error {
	return nil
}

func (NoopRegisterer) MustRegister(...prometheus.Collector) {}

func (NoopRegisterer) Unregister(prometheus.Collector) bool {
	return true
}
