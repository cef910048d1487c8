// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownCodec = errors.New("unknown codec")

// Registry maps codec identifiers to encoder and decoder factories. It is
// filled once at startup; registering an identifier twice is an error.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]EncoderFactory
	decoders map[string]DecoderFactory
}

func NewRegistry() *Registry {
	return &Registry{
		encoders: make(map[string]EncoderFactory),
		decoders: make(map[string]DecoderFactory),
	}
}

func (r *Registry) RegisterEncoder(id string, factory EncoderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.encoders[id]; ok {
		return fmt.Errorf("encoder %q already registered", id)
	}
	r.encoders[id] = factory
	return nil
}

func (r *Registry) RegisterDecoder(id string, factory DecoderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decoders[id]; ok {
		return fmt.Errorf("decoder %q already registered", id)
	}
	r.decoders[id] = factory
	return nil
}

// EncoderFactory returns the factory for id.
func (r *Registry) EncoderFactory(id string) (EncoderFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.encoders[id]
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %q", ErrUnknownCodec, id)
	}
	return f, nil
}

func (r *Registry) NewEncoder(id string, conf EncoderConfig) (Encoder, error) {
	f, err := r.EncoderFactory(id)
	if err != nil {
		return nil, err
	}
	return f(conf)
}

func (r *Registry) NewDecoder(id string) (Decoder, error) {
	r.mu.RLock()
	f, ok := r.decoders[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %q", ErrUnknownCodec, id)
	}
	return f()
}

// Encoders lists the registered encoder identifiers.
func (r *Registry) Encoders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.encoders))
	for id := range r.encoders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Decoders lists the registered decoder identifiers.
func (r *Registry) Decoders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.decoders))
	for id := range r.decoders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
