package main

import (
	"context"
	"fmt"

	"github.com/carlohamalainen/nsc-exam-papers-go"
	"github.com/carlohamalainen/nsc-exam-papers-go/cache"
	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

func main() {
	client, err := cache.NewHTTPClient(nil, 0)
	if err != nil {
		panic(err)
	}

	src := nsc.NewSource(config.Default(), client)

	session := nsc.Sessions[0]

	url, err := nsc.SessionURL(src.BaseURL, session)
	if err != nil {
		panic(err)
	}
	fmt.Println(url)

	papers := src.FetchSessionPapers(context.Background(), session)

	fmt.Println(len(papers))

	for _, p := range papers {
		fmt.Printf("%+v\n", p)
	}
}
