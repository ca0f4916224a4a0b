package s3util

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePut struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct {
	expires time.Duration
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.example/" + *in.Key}, nil
}

func TestImageKey(t *testing.T) {
	tests := []struct {
		owner, id, name string
		want            string
	}{
		{"u1", "r1", "Scan.JPG", "images/u1/r1.jpg"},
		{"", "r2", "xray.png", "images/anonymous/r2.png"},
		{"u1", "r3", "noext", "images/u1/r3"},
	}
	for _, tt := range tests {
		if got := ImageKey(tt.owner, tt.id, tt.name); got != tt.want {
			t.Errorf("ImageKey(%q, %q, %q) = %q, want %q", tt.owner, tt.id, tt.name, got, tt.want)
		}
	}
}

func TestUploadImage(t *testing.T) {
	client := &fakePut{}
	err := UploadImage(context.Background(), client, "bucket", "images/u1/r1.jpg", []byte("jpegdata"), "image/jpeg")
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}
	if *client.in.Bucket != "bucket" || *client.in.Key != "images/u1/r1.jpg" {
		t.Errorf("target = %s/%s", *client.in.Bucket, *client.in.Key)
	}
	if *client.in.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", *client.in.ContentType)
	}
	if *client.in.Tagging != projectTag {
		t.Errorf("Tagging = %q, want %q", *client.in.Tagging, projectTag)
	}
	if string(client.body) != "jpegdata" {
		t.Errorf("body = %q", client.body)
	}
}

func TestUploadImageError(t *testing.T) {
	cause := errors.New("access denied")
	err := UploadImage(context.Background(), &fakePut{err: cause}, "b", "k", nil, "image/png")
	if !errors.Is(err, cause) {
		t.Errorf("UploadImage() error = %v, want wrapped %v", err, cause)
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	p := &fakePresign{}
	url, err := GeneratePresignedURL(context.Background(), p, "bucket", "images/u1/r1.jpg", DefaultURLExpiry)
	if err != nil {
		t.Fatalf("GeneratePresignedURL() error = %v", err)
	}
	if url != "https://bucket.s3.example/images/u1/r1.jpg" {
		t.Errorf("url = %q", url)
	}
	if p.expires != DefaultURLExpiry {
		t.Errorf("expiry = %v, want %v", p.expires, DefaultURLExpiry)
	}
}

func TestImageBucket(t *testing.T) {
	put := &fakePut{}
	p := &fakePresign{}
	b := &ImageBucket{Client: put, Presigner: p, Bucket: "media"}

	if err := b.Put(context.Background(), "images/u/r.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if *put.in.Bucket != "media" {
		t.Errorf("bucket = %q", *put.in.Bucket)
	}
	url, err := b.URL(context.Background(), "images/u/r.png")
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if url != "https://media.s3.example/images/u/r.png" || p.expires != DefaultURLExpiry {
		t.Errorf("URL() = %q (expiry %v)", url, p.expires)
	}
}
