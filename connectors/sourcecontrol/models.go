// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sourcecontrol

import "time"

// Repository is the gateway view of a repository
type Repository struct {
	Name          string    `json:"name"`
	FullName      string    `json:"fullName"`
	Description   string    `json:"description,omitempty"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"defaultBranch"`
	URL           string    `json:"url"`
	Stars         int       `json:"stars"`
	OpenIssues    int       `json:"openIssues"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Issue is the gateway view of an issue
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	Labels    []string  `json:"labels"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// PullRequest is the gateway view of a pull request
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Author string `json:"author"`
	Draft  bool   `json:"draft"`
	Head   string `json:"head"`
	Base   string `json:"base"`
	URL    string `json:"url"`
}

type apiUser struct {
	Login string `json:"login"`
}

type apiRepository struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Private         bool      `json:"private"`
	DefaultBranch   string    `json:"default_branch"`
	HTMLURL         string    `json:"html_url"`
	StargazersCount int       `json:"stargazers_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r apiRepository) toRepository() Repository {
	return Repository{
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		Private:       r.Private,
		DefaultBranch: r.DefaultBranch,
		URL:           r.HTMLURL,
		Stars:         r.StargazersCount,
		OpenIssues:    r.OpenIssuesCount,
		UpdatedAt:     r.UpdatedAt,
	}
}

type apiIssue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	State   string  `json:"state"`
	User    apiUser `json:"user"`
	HTMLURL string  `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	CreatedAt   time.Time `json:"created_at"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (i apiIssue) toIssue() Issue {
	labels := make([]string, len(i.Labels))
	for j, l := range i.Labels {
		labels[j] = l.Name
	}
	return Issue{
		Number:    i.Number,
		Title:     i.Title,
		State:     i.State,
		Author:    i.User.Login,
		Labels:    labels,
		URL:       i.HTMLURL,
		CreatedAt: i.CreatedAt,
	}
}

type apiPullRequest struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	State   string  `json:"state"`
	User    apiUser `json:"user"`
	Draft   bool    `json:"draft"`
	HTMLURL string  `json:"html_url"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

func (p apiPullRequest) toPullRequest() PullRequest {
	return PullRequest{
		Number: p.Number,
		Title:  p.Title,
		State:  p.State,
		Author: p.User.Login,
		Draft:  p.Draft,
		Head:   p.Head.Ref,
		Base:   p.Base.Ref,
		URL:    p.HTMLURL,
	}
}
