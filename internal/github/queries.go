package github

// GraphQL documents sent to the upstream API. Cursor variables are always
// optional; a null cursor means the first page.

const contributedReposQuery = `
query($login: String!, $after: String) {
  user(login: $login) {
    id
    repositoriesContributedTo(first: 100, after: $after, includeUserRepositories: true) {
      pageInfo { hasNextPage endCursor }
      nodes { nameWithOwner stargazerCount isFork }
    }
  }
}`

const pullRequestsQuery = `
query($login: String!, $after: String) {
  user(login: $login) {
    pullRequests(first: 100, after: $after, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        merged
        createdAt
        repository { nameWithOwner }
      }
    }
  }
}`

const issuesQuery = `
query($login: String!, $after: String) {
  user(login: $login) {
    issues(first: 100, after: $after, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        title
        state
        createdAt
        repository { nameWithOwner }
      }
    }
  }
}`

const repositoryCommitsQuery = `
query($owner: String!, $name: String!, $authorId: ID!, $after: String) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: 100, after: $after, author: {id: $authorId}) {
            pageInfo { hasNextPage endCursor }
            nodes { oid message additions deletions committedDate }
          }
        }
      }
    }
  }
}`
