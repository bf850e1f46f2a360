// Copyright 2024 The Restbridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package restbridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFamilyOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, FamilyInformational, FamilyOf(100))
	require.Equal(t, FamilySuccessful, FamilyOf(204))
	require.Equal(t, FamilyRedirection, FamilyOf(307))
	require.Equal(t, FamilyClientError, FamilyOf(418))
	require.Equal(t, FamilyServerError, FamilyOf(599))
	require.Equal(t, FamilyOther, FamilyOf(0))
	require.Equal(t, FamilyOther, FamilyOf(600))
}

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	exact := map[int]StatusKind{
		400: KindBadRequest,
		401: KindUnauthorized,
		403: KindForbidden,
		404: KindNotFound,
		405: KindMethodNotAllowed,
		406: KindNotAcceptable,
		415: KindUnsupportedMediaType,
		500: KindInternalServerError,
		503: KindServiceUnavailable,
	}
	for code, kind := range exact {
		code, kind := code, kind
		t.Run(fmt.Sprintf("%d", code), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, kind, kindForStatus(code))
		})
	}

	// codes without a dedicated kind fall back to their family
	require.Equal(t, KindRedirection, kindForStatus(302))
	require.Equal(t, KindClientError, kindForStatus(402))
	require.Equal(t, KindClientError, kindForStatus(429))
	require.Equal(t, KindServerError, kindForStatus(502))
	require.Equal(t, KindUnexpectedStatus, kindForStatus(207))
	require.Equal(t, KindUnexpectedStatus, kindForStatus(999))
}

func TestStatusErrorFamilyDerivedFromCode(t *testing.T) {
	t.Parallel()

	err := &StatusError{Code: 404, Kind: KindNotFound}
	require.Equal(t, FamilyClientError, err.Family())

	err = &StatusError{Code: 503, Kind: KindServiceUnavailable}
	require.Equal(t, FamilyServerError, err.Family())
}

func TestIsStatus(t *testing.T) {
	t.Parallel()

	notFound := &StatusError{Code: 404, Kind: KindNotFound}
	require.True(t, IsStatus(notFound, 404))
	require.False(t, IsStatus(notFound, 500))
	require.True(t, IsStatus(fmt.Errorf("during sync: %w", notFound), 404))
	require.False(t, IsStatus(errors.New("plain"), 404))
	require.False(t, IsStatus(nil, 404))
}
