// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package accounts_test

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func identity() url.Values {
	return url.Values{
		"username":    {"alice"},
		"email":       {"a@x.com"},
		"firstName":   {"Alice"},
		"dateOfBirth": {"2000-01-01"},
	}
}

func withPassword(v url.Values, password string) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = vs
	}
	out.Set("password", password)
	return out
}

func post(path string, form url.Values) (int, string) {
	resp, err := http.PostForm(env.server.URL+path, form)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, string(body)
}

func tokenFromLink(link string) string {
	u, err := url.Parse(link)
	Expect(err).NotTo(HaveOccurred())
	Expect(u.Path).To(Equal("/reset-password"))
	return u.Query().Get("id")
}

var _ = Describe("Account lifecycle", func() {
	BeforeEach(func() {
		env.truncate()
	})

	It("registers, logs in, resets the password and logs in again", func() {
		code, body := post("/signup", withPassword(identity(), "pw1"))
		Expect(code).To(Equal(http.StatusCreated))
		Expect(body).To(Equal("user registered successfully"))

		code, _ = post("/signup", withPassword(identity(), "other"))
		Expect(code).To(Equal(http.StatusConflict))

		code, body = post("/login", withPassword(identity(), "pw1"))
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal("login successful"))

		code, _ = post("/login", withPassword(identity(), "wrong"))
		Expect(code).To(Equal(http.StatusUnauthorized))

		code, body = post("/forgot-password", identity())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal("a password-reset email has been sent to your email address"))

		msg := env.outbox.last()
		Expect(msg.To).To(Equal("a@x.com"))
		Expect(msg.Link).To(HavePrefix("http://localhost:3000/reset-password?id="))
		token := tokenFromLink(msg.Link)

		resp, err := http.Get(env.server.URL + "/reset-password?id=" + url.QueryEscape(token))
		Expect(err).NotTo(HaveOccurred())
		page, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(page)).To(ContainSubstring(`name="id"`))

		code, body = post("/reset-password", url.Values{"id": {token}, "password": {"pw2"}})
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal("password has been reset successfully"))

		code, _ = post("/login", withPassword(identity(), "pw1"))
		Expect(code).To(Equal(http.StatusUnauthorized))
		code, _ = post("/login", withPassword(identity(), "pw2"))
		Expect(code).To(Equal(http.StatusOK))

		code, _ = post("/reset-password", url.Values{"id": {token}, "password": {"pw3"}})
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("keeps accounts that differ in one identity field apart", func() {
		code, _ := post("/signup", withPassword(identity(), "pw1"))
		Expect(code).To(Equal(http.StatusCreated))

		other := identity()
		other.Set("email", "b@x.com")
		code, _ = post("/signup", withPassword(other, "pw2"))
		Expect(code).To(Equal(http.StatusCreated))

		code, _ = post("/login", withPassword(other, "pw1"))
		Expect(code).To(Equal(http.StatusUnauthorized))
	})

	It("reports an unknown identity on forgot-password", func() {
		code, body := post("/forgot-password", identity())
		Expect(code).To(Equal(http.StatusNotFound))
		Expect(body).To(Equal("no user with this data"))
	})

	It("lets exactly one concurrent reset consume a token", func() {
		code, _ := post("/signup", withPassword(identity(), "pw1"))
		Expect(code).To(Equal(http.StatusCreated))
		code, _ = post("/forgot-password", identity())
		Expect(code).To(Equal(http.StatusOK))
		token := tokenFromLink(env.outbox.last().Link)

		const racers = 5
		codes := make(chan int, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				c, _ := post("/reset-password", url.Values{"id": {token}, "password": {"race" + string(rune('a'+i))}})
				codes <- c
			}()
		}
		wg.Wait()
		close(codes)

		ok := 0
		for c := range codes {
			if c == http.StatusOK {
				ok++
			} else {
				Expect(c).To(Equal(http.StatusNotFound))
			}
		}
		Expect(ok).To(Equal(1))
	})

	It("stores an identity of multibyte fields at the maximum length", func() {
		wide := url.Values{
			"username":    {strings.Repeat("名", 200)},
			"firstName":   {strings.Repeat("🔑", 150)},
			"dateOfBirth": {strings.Repeat("日", 200)},
			"email":       {strings.Repeat("メ", 200)},
		}

		code, body := post("/signup", withPassword(wide, "pw1"))
		Expect(code).To(Equal(http.StatusCreated), body)

		code, _ = post("/signup", withPassword(wide, "pw2"))
		Expect(code).To(Equal(http.StatusConflict))

		code, _ = post("/login", withPassword(wide, "pw1"))
		Expect(code).To(Equal(http.StatusOK))
	})

	It("accepts an empty password", func() {
		code, _ := post("/signup", withPassword(identity(), ""))
		Expect(code).To(Equal(http.StatusCreated))

		code, _ = post("/login", withPassword(identity(), ""))
		Expect(code).To(Equal(http.StatusOK))
	})
})
