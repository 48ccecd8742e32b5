package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRouting(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		expectedPath string
		expectedType string
	}{
		{
			name:         "11 digit cpf routes to busca-cliente",
			message:      "meu cpf é 12345678901",
			expectedPath: "/busca-cliente/12345678901",
			expectedType: TypeCPF,
		},
		{
			name:         "6 digit customer id routes to cliente-completo",
			message:      "sou o cliente 845213",
			expectedPath: "/cliente-completo/845213",
			expectedType: TypeCustomerID,
		},
		{
			name:         "9 digit id still matches the id pattern",
			message:      "pedido do cliente 123456789, por favor",
			expectedPath: "/cliente-completo/123456789",
			expectedType: TypeCustomerID,
		},
		{
			name:         "cpf wins when both patterns could match",
			message:      "cpf 98765432100 e id 845213",
			expectedPath: "/busca-cliente/98765432100",
			expectedType: TypeCPF,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath, gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"nome":"Maria"}`))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key")
			result := client.Lookup(context.Background(), tc.message)

			require.NotNil(t, result)
			assert.Equal(t, tc.expectedType, result.Type)
			assert.Equal(t, tc.expectedPath, gotPath)
			assert.Equal(t, "Bearer test-key", gotAuth)
			assert.Equal(t, map[string]interface{}{"nome": "Maria"}, result.Data)
		})
	}
}

func TestLookupNoIdentifierSkipsNetwork(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	for _, message := range []string{
		"olá, tudo bem?",
		"meu pedido não chegou",
		"liguei ontem às 14:30",
		"12345", // too short for either pattern
		"123456789012", // 12 digits, no word boundary match
	} {
		assert.Nil(t, client.Lookup(context.Background(), message), "message %q should not resolve", message)
	}
	assert.Zero(t, atomic.LoadInt64(&calls), "no identifier should mean no API call")
}

func TestLookupRemoteFailuresReturnNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "404 from the api",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "500 from the api",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "unparseable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewClient(server.URL, "test-key")
			assert.Nil(t, client.Lookup(context.Background(), "cliente 845213"))
		})
	}
}

func TestLookupCPFFailureDoesNotFallThroughToID(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	result := client.Lookup(context.Background(), "cpf 12345678901 id 845213")

	assert.Nil(t, result)
	require.Len(t, paths, 1)
	assert.Equal(t, "/busca-cliente/12345678901", paths[0])
}
